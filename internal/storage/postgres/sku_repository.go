package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lmoreno/stockblock/internal/domain"
)

type SkuRepository struct {
	pool *pgxpool.Pool
}

func NewSkuRepository(pool *pgxpool.Pool) *SkuRepository {
	return &SkuRepository{pool: pool}
}

func (r *SkuRepository) CreateSku(ctx context.Context, sku domain.Sku) error {
	const stmt = `
INSERT INTO skus (id, code, name, quantity, price, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := exec(ctx, r.pool, stmt,
		sku.ID,
		sku.Code,
		sku.Name,
		sku.Quantity,
		sku.Price.StringFixed(2),
		sku.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCode
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create sku: %w", err)
	}
	return nil
}

func (r *SkuRepository) GetSku(ctx context.Context, skuID string) (domain.Sku, error) {
	const q = `
SELECT id, code, name, quantity, price::text, created_at
FROM skus
WHERE id = $1`

	sku, err := scanSku(queryRow(ctx, r.pool, q, skuID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Sku{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Sku{}, domain.ErrSkuNotFound
		}
		return domain.Sku{}, fmt.Errorf("get sku: %w", err)
	}
	return sku, nil
}

func (r *SkuRepository) SumActiveBlocks(ctx context.Context, skuID string, now time.Time) (int, error) {
	return sumActiveBlocks(ctx, r.pool, skuID, now)
}

// sumActiveBlocks counts overdue-but-unswept blocks as expired by filtering
// on expires_at, so availability never waits on the sweeper.
func sumActiveBlocks(ctx context.Context, pool *pgxpool.Pool, skuID string, now time.Time) (int, error) {
	const q = `
SELECT COALESCE(SUM(quantity), 0)
FROM temporary_blocks
WHERE sku_id = $1 AND status = 'active' AND expires_at > $2`

	var total int
	if err := queryRow(ctx, pool, q, skuID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum active blocks: %w", err)
	}
	return total, nil
}

func scanSku(row pgx.Row) (domain.Sku, error) {
	var (
		sku   domain.Sku
		price string
	)
	if err := row.Scan(&sku.ID, &sku.Code, &sku.Name, &sku.Quantity, &price, &sku.CreatedAt); err != nil {
		return domain.Sku{}, err
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Sku{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	sku.Price = parsed
	return sku, nil
}
