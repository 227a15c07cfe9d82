package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lmoreno/stockblock/internal/clock"
	"github.com/lmoreno/stockblock/internal/domain"
)

type SkuRepository interface {
	CreateSku(ctx context.Context, sku domain.Sku) error
	GetSku(ctx context.Context, skuID string) (domain.Sku, error)
	SumActiveBlocks(ctx context.Context, skuID string, now time.Time) (int, error)
}

// SkuService owns SKU records and the availability computation. Available
// quantity is always derived from the active block sum, never stored.
type SkuService struct {
	repo  SkuRepository
	clock clock.Clock
}

func NewSkuService(repo SkuRepository, clk clock.Clock) *SkuService {
	return &SkuService{
		repo:  repo,
		clock: clk,
	}
}

type CreateSkuInput struct {
	Code     string
	Name     string
	Quantity int
	Price    decimal.Decimal
}

func (s *SkuService) CreateSku(ctx context.Context, in CreateSkuInput) (domain.Sku, error) {
	if in.Code == "" {
		return domain.Sku{}, domain.ErrCodeRequired
	}
	if in.Name == "" {
		return domain.Sku{}, domain.ErrNameRequired
	}
	if in.Quantity < 0 {
		return domain.Sku{}, domain.ErrInvalidQuantity
	}
	if !in.Price.IsPositive() || in.Price.Exponent() < -2 {
		return domain.Sku{}, domain.ErrInvalidPrice
	}

	sku := domain.Sku{
		ID:        uuid.NewString(),
		Code:      in.Code,
		Name:      in.Name,
		Quantity:  in.Quantity,
		Price:     in.Price,
		CreatedAt: s.clock.Now(),
	}

	if err := s.repo.CreateSku(ctx, sku); err != nil {
		return domain.Sku{}, err
	}
	return sku, nil
}

// AvailableQuantity returns total quantity minus the sum of currently active,
// unexpired blocks. The value is computed at call time and may be stale by
// the time the caller acts on it; writers must recompute it under a row lock.
func (s *SkuService) AvailableQuantity(ctx context.Context, skuID string) (int, error) {
	now := s.clock.Now()

	sku, err := s.repo.GetSku(ctx, skuID)
	if err != nil {
		return 0, err
	}

	held, err := s.repo.SumActiveBlocks(ctx, skuID, now)
	if err != nil {
		return 0, err
	}
	return sku.Quantity - held, nil
}
