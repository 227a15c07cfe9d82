package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmoreno/stockblock/internal/domain"
)

type BlockRepository struct {
	pool *pgxpool.Pool
}

func NewBlockRepository(pool *pgxpool.Pool) *BlockRepository {
	return &BlockRepository{pool: pool}
}

func (r *BlockRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetSkuForUpdate locks the SKU row for the rest of the transaction. Taking
// this lock before the availability sum is what serializes concurrent
// reservations against the same SKU.
func (r *BlockRepository) GetSkuForUpdate(ctx context.Context, skuID string) (domain.Sku, error) {
	const q = `
SELECT id, code, name, quantity, price::text, created_at
FROM skus
WHERE id = $1
FOR UPDATE`

	sku, err := scanSku(queryRow(ctx, r.pool, q, skuID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Sku{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Sku{}, domain.ErrSkuNotFound
		}
		return domain.Sku{}, fmt.Errorf("get sku for update: %w", err)
	}
	return sku, nil
}

func (r *BlockRepository) SumActiveBlocks(ctx context.Context, skuID string, now time.Time) (int, error) {
	return sumActiveBlocks(ctx, r.pool, skuID, now)
}

func (r *BlockRepository) CreateBlock(ctx context.Context, block domain.TemporaryBlock) error {
	const stmt = `
INSERT INTO temporary_blocks (id, sku_id, quantity, reason, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := exec(ctx, r.pool, stmt,
		block.ID,
		block.SkuID,
		block.Quantity,
		block.Reason,
		block.Status,
		block.ExpiresAt,
		block.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrSkuNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create block: %w", err)
	}
	return nil
}

func (r *BlockRepository) GetBlockForUpdate(ctx context.Context, blockID string) (domain.TemporaryBlock, error) {
	const q = `
SELECT id, sku_id, quantity, reason, status, expires_at, created_at, converted_at, cancelled_at
FROM temporary_blocks
WHERE id = $1
FOR UPDATE`

	var b domain.TemporaryBlock
	err := queryRow(ctx, r.pool, q, blockID).Scan(
		&b.ID,
		&b.SkuID,
		&b.Quantity,
		&b.Reason,
		&b.Status,
		&b.ExpiresAt,
		&b.CreatedAt,
		&b.ConvertedAt,
		&b.CancelledAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TemporaryBlock{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TemporaryBlock{}, domain.ErrBlockNotFound
		}
		return domain.TemporaryBlock{}, fmt.Errorf("get block for update: %w", err)
	}
	return b, nil
}

func (r *BlockRepository) MarkConverted(ctx context.Context, blockID, reason string, at time.Time) error {
	const stmt = `
UPDATE temporary_blocks
SET status = 'converted', reason = $2, converted_at = $3, updated_at = $3
WHERE id = $1 AND status = 'active'`

	tag, err := exec(ctx, r.pool, stmt, blockID, reason, at)
	if err != nil {
		return fmt.Errorf("mark converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBlockNotFound
	}
	return nil
}

func (r *BlockRepository) MarkCancelled(ctx context.Context, blockID, reason string, at time.Time) error {
	const stmt = `
UPDATE temporary_blocks
SET status = 'cancelled', reason = $2, cancelled_at = $3, updated_at = $3
WHERE id = $1 AND status = 'active'`

	tag, err := exec(ctx, r.pool, stmt, blockID, reason, at)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBlockNotFound
	}
	return nil
}

// DeductSkuQuantity permanently lowers the SKU total. The caller is expected
// to have validated, inside the same transaction, that the quantity was
// actively reserved.
func (r *BlockRepository) DeductSkuQuantity(ctx context.Context, skuID string, quantity int) error {
	const stmt = `
UPDATE skus
SET quantity = quantity - $2
WHERE id = $1`

	tag, err := exec(ctx, r.pool, stmt, skuID, quantity)
	if err != nil {
		return fmt.Errorf("deduct sku quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSkuNotFound
	}
	return nil
}

func (r *BlockRepository) ListActiveBlocks(ctx context.Context, now time.Time) ([]domain.ActiveBlock, error) {
	const q = `
SELECT b.id, b.sku_id, s.code, b.quantity, b.reason, b.status, b.expires_at, b.created_at
FROM temporary_blocks b
JOIN skus s ON s.id = b.sku_id
WHERE b.status = 'active' AND b.expires_at > $1
ORDER BY b.created_at DESC`

	rows, err := query(ctx, r.pool, q, now)
	if err != nil {
		return nil, fmt.Errorf("list active blocks: %w", err)
	}
	defer rows.Close()

	var blocks []domain.ActiveBlock
	for rows.Next() {
		var b domain.ActiveBlock
		if err := rows.Scan(&b.ID, &b.SkuID, &b.SkuCode, &b.Quantity, &b.Reason, &b.Status, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate blocks: %w", rows.Err())
	}
	return blocks, nil
}

func (r *BlockRepository) ExpireOverdueBlocks(ctx context.Context, now time.Time) ([]domain.TemporaryBlock, error) {
	const stmt = `
UPDATE temporary_blocks
SET status = 'expired', updated_at = $1
WHERE status = 'active' AND expires_at <= $1
RETURNING id, sku_id, quantity, reason, status, expires_at, created_at`

	rows, err := query(ctx, r.pool, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("expire overdue blocks: %w", err)
	}
	defer rows.Close()

	var blocks []domain.TemporaryBlock
	for rows.Next() {
		var b domain.TemporaryBlock
		if err := rows.Scan(&b.ID, &b.SkuID, &b.Quantity, &b.Reason, &b.Status, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate expired blocks: %w", rows.Err())
	}
	return blocks, nil
}
