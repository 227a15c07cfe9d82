package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lmoreno/stockblock/internal/clock"
	"github.com/lmoreno/stockblock/internal/domain"
)

type BlockRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSkuForUpdate(ctx context.Context, skuID string) (domain.Sku, error)
	SumActiveBlocks(ctx context.Context, skuID string, now time.Time) (int, error)
	CreateBlock(ctx context.Context, block domain.TemporaryBlock) error
	GetBlockForUpdate(ctx context.Context, blockID string) (domain.TemporaryBlock, error)
	MarkConverted(ctx context.Context, blockID, reason string, at time.Time) error
	MarkCancelled(ctx context.Context, blockID, reason string, at time.Time) error
	DeductSkuQuantity(ctx context.Context, skuID string, quantity int) error
	ListActiveBlocks(ctx context.Context, now time.Time) ([]domain.ActiveBlock, error)
}

// BlockService enforces the temporary block lifecycle:
// active -> converted | cancelled | expired, terminal states being sinks.
type BlockService struct {
	repo   BlockRepository
	clock  clock.Clock
	events Publisher
}

func NewBlockService(repo BlockRepository, clk clock.Clock, events Publisher) *BlockService {
	if events == nil {
		events = NopPublisher()
	}
	return &BlockService{
		repo:   repo,
		clock:  clk,
		events: events,
	}
}

type CreateBlockInput struct {
	SkuID     string
	Quantity  int
	Reason    string
	ExpiresAt time.Time
}

// CreateBlock reserves quantity against a SKU. The availability check and the
// insert run in one transaction with the SKU row locked first, so two
// concurrent reservations cannot jointly oversell the SKU.
func (s *BlockService) CreateBlock(ctx context.Context, in CreateBlockInput) (domain.TemporaryBlock, error) {
	if in.Quantity <= 0 {
		return domain.TemporaryBlock{}, domain.ErrInvalidQuantity
	}
	if in.Reason == "" {
		return domain.TemporaryBlock{}, domain.ErrReasonRequired
	}

	now := s.clock.Now()
	if !in.ExpiresAt.After(now) {
		return domain.TemporaryBlock{}, domain.ErrInvalidExpiry
	}

	var result domain.TemporaryBlock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		sku, err := s.repo.GetSkuForUpdate(txCtx, in.SkuID)
		if err != nil {
			return err
		}

		held, err := s.repo.SumActiveBlocks(txCtx, in.SkuID, now)
		if err != nil {
			return err
		}

		available := sku.Quantity - held
		if in.Quantity > available {
			return &domain.InsufficientInventoryError{Available: available, Requested: in.Quantity}
		}

		block := domain.TemporaryBlock{
			ID:        uuid.NewString(),
			SkuID:     sku.ID,
			Quantity:  in.Quantity,
			Reason:    in.Reason,
			Status:    domain.BlockStatusActive,
			ExpiresAt: in.ExpiresAt.UTC(),
			CreatedAt: now,
		}

		if err := s.repo.CreateBlock(txCtx, block); err != nil {
			return err
		}

		result = block
		return nil
	})
	if err != nil {
		return domain.TemporaryBlock{}, err
	}

	s.publish(ctx, EventBlockCreated, result, now)
	return result, nil
}

type TransitionBlockInput struct {
	BlockID string
	Reason  string
}

// ConvertToPermanent flips an active block to converted and permanently
// deducts its quantity from the SKU. Both writes commit together or not at
// all; a converted block with no matching deduction must never be observable.
func (s *BlockService) ConvertToPermanent(ctx context.Context, in TransitionBlockInput) (domain.TemporaryBlock, error) {
	if in.Reason == "" {
		return domain.TemporaryBlock{}, domain.ErrReasonRequired
	}

	now := s.clock.Now()
	var result domain.TemporaryBlock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		block, err := s.repo.GetBlockForUpdate(txCtx, in.BlockID)
		if err != nil {
			return err
		}
		if st := block.EffectiveStatus(now); st != domain.BlockStatusActive {
			return &domain.InvalidTransitionError{Current: st}
		}

		if err := s.repo.MarkConverted(txCtx, block.ID, in.Reason, now); err != nil {
			return err
		}
		if err := s.repo.DeductSkuQuantity(txCtx, block.SkuID, block.Quantity); err != nil {
			return err
		}

		block.Status = domain.BlockStatusConverted
		block.Reason = in.Reason
		block.ConvertedAt = &now
		result = block
		return nil
	})
	if err != nil {
		return domain.TemporaryBlock{}, err
	}

	s.publish(ctx, EventBlockConverted, result, now)
	return result, nil
}

// CancelBlock flips an active block to cancelled. The reserved quantity is
// freed implicitly; the SKU row is not touched.
func (s *BlockService) CancelBlock(ctx context.Context, in TransitionBlockInput) (domain.TemporaryBlock, error) {
	if in.Reason == "" {
		return domain.TemporaryBlock{}, domain.ErrReasonRequired
	}

	now := s.clock.Now()
	var result domain.TemporaryBlock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		block, err := s.repo.GetBlockForUpdate(txCtx, in.BlockID)
		if err != nil {
			return err
		}
		if st := block.EffectiveStatus(now); st != domain.BlockStatusActive {
			return &domain.InvalidTransitionError{Current: st}
		}

		if err := s.repo.MarkCancelled(txCtx, block.ID, in.Reason, now); err != nil {
			return err
		}

		block.Status = domain.BlockStatusCancelled
		block.Reason = in.Reason
		block.CancelledAt = &now
		result = block
		return nil
	})
	if err != nil {
		return domain.TemporaryBlock{}, err
	}

	s.publish(ctx, EventBlockCancelled, result, now)
	return result, nil
}

// ListActiveBlocks returns unexpired active blocks, newest first, joined with
// the owning SKU's code.
func (s *BlockService) ListActiveBlocks(ctx context.Context) ([]domain.ActiveBlock, error) {
	return s.repo.ListActiveBlocks(ctx, s.clock.Now())
}

func (s *BlockService) publish(ctx context.Context, eventType string, block domain.TemporaryBlock, at time.Time) {
	ev := BlockEvent{
		Type:       eventType,
		BlockID:    block.ID,
		SkuID:      block.SkuID,
		Quantity:   block.Quantity,
		OccurredAt: at,
	}
	if err := s.events.PublishBlockEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("block_id", block.ID).Msg("publish block event failed")
	}
}
