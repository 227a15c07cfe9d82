package app

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/lmoreno/stockblock/internal/clock"
	"github.com/lmoreno/stockblock/internal/domain"
)

func TestBlockService_CreateBlock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Minute)

	makeSvc := func(skus []domain.Sku, blocks []domain.TemporaryBlock) (*BlockService, *fakeBlockRepo) {
		repo := newFakeBlockRepo(skus, blocks)
		svc := NewBlockService(repo, clock.NewFixed(now), nil)
		return svc, repo
	}

	t.Run("creates block when quantity available", func(t *testing.T) {
		svc, repo := makeSvc(
			[]domain.Sku{{ID: "sku-1", Code: "WIDGET-1", Quantity: 100}},
			[]domain.TemporaryBlock{
				{SkuID: "sku-1", Quantity: 30, Status: domain.BlockStatusActive, ExpiresAt: future},
			},
		)

		block, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID:     "sku-1",
			Quantity:  70,
			Reason:    "pending order",
			ExpiresAt: future,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if block.ID == "" {
			t.Fatalf("expected block ID to be set")
		}
		if block.Status != domain.BlockStatusActive {
			t.Fatalf("expected status active, got %s", block.Status)
		}
		if block.CreatedAt != now {
			t.Fatalf("expected created_at %v, got %v", now, block.CreatedAt)
		}
		if len(repo.blocks) != 2 {
			t.Fatalf("expected 2 blocks in repo, got %d", len(repo.blocks))
		}
	})

	t.Run("insufficient inventory carries both figures and creates nothing", func(t *testing.T) {
		svc, repo := makeSvc(
			[]domain.Sku{{ID: "sku-1", Code: "WIDGET-1", Quantity: 100}},
			[]domain.TemporaryBlock{
				{SkuID: "sku-1", Quantity: 30, Status: domain.BlockStatusActive, ExpiresAt: future},
			},
		)

		_, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID:     "sku-1",
			Quantity:  71,
			Reason:    "pending order",
			ExpiresAt: future,
		})

		var insufficient *domain.InsufficientInventoryError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientInventoryError, got %v", err)
		}
		if insufficient.Available != 70 || insufficient.Requested != 71 {
			t.Fatalf("expected available=70 requested=71, got %+v", insufficient)
		}
		if len(repo.blocks) != 1 {
			t.Fatalf("expected blocks unchanged on failure, got %d", len(repo.blocks))
		}
	})

	t.Run("expired blocks free availability", func(t *testing.T) {
		svc, _ := makeSvc(
			[]domain.Sku{{ID: "sku-1", Code: "WIDGET-1", Quantity: 100}},
			[]domain.TemporaryBlock{
				{SkuID: "sku-1", Quantity: 80, Status: domain.BlockStatusActive, ExpiresAt: now.Add(-1 * time.Minute)},
			},
		)

		block, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID:     "sku-1",
			Quantity:  100,
			Reason:    "pending order",
			ExpiresAt: future,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if block.Quantity != 100 {
			t.Fatalf("expected quantity 100, got %d", block.Quantity)
		}
	})

	t.Run("expiry must be in the future", func(t *testing.T) {
		svc, _ := makeSvc([]domain.Sku{{ID: "sku-1", Quantity: 10}}, nil)

		for _, expiresAt := range []time.Time{now, now.Add(-1 * time.Second)} {
			_, err := svc.CreateBlock(context.Background(), CreateBlockInput{
				SkuID:     "sku-1",
				Quantity:  1,
				Reason:    "pending order",
				ExpiresAt: expiresAt,
			})
			if err != domain.ErrInvalidExpiry {
				t.Fatalf("expected ErrInvalidExpiry, got %v", err)
			}
		}
	})

	t.Run("missing sku returns error", func(t *testing.T) {
		svc, _ := makeSvc(nil, nil)

		_, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID:     "missing",
			Quantity:  1,
			Reason:    "pending order",
			ExpiresAt: future,
		})
		if err != domain.ErrSkuNotFound {
			t.Fatalf("expected ErrSkuNotFound, got %v", err)
		}
	})

	t.Run("invalid quantity and missing reason rejected", func(t *testing.T) {
		svc, _ := makeSvc([]domain.Sku{{ID: "sku-1", Quantity: 10}}, nil)

		if _, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID: "sku-1", Quantity: 0, Reason: "r", ExpiresAt: future,
		}); err != domain.ErrInvalidQuantity {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
		if _, err := svc.CreateBlock(context.Background(), CreateBlockInput{
			SkuID: "sku-1", Quantity: 1, Reason: "", ExpiresAt: future,
		}); err != domain.ErrReasonRequired {
			t.Fatalf("expected ErrReasonRequired, got %v", err)
		}
	})
}

func TestBlockService_ConvertToPermanent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("converts active block and deducts sku quantity", func(t *testing.T) {
		repo := newFakeBlockRepo(
			[]domain.Sku{{ID: "sku-1", Code: "WIDGET-1", Quantity: 50}},
			[]domain.TemporaryBlock{
				{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: domain.BlockStatusActive, ExpiresAt: now.Add(10 * time.Minute)},
			},
		)
		svc := NewBlockService(repo, clock.NewFixed(now), nil)

		block, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{
			BlockID: "block-1",
			Reason:  "order shipped",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if block.Status != domain.BlockStatusConverted {
			t.Fatalf("expected status converted, got %s", block.Status)
		}
		if block.ConvertedAt == nil || !block.ConvertedAt.Equal(now) {
			t.Fatalf("expected converted_at %v, got %v", now, block.ConvertedAt)
		}
		if block.Reason != "order shipped" {
			t.Fatalf("expected transition reason stored, got %q", block.Reason)
		}
		if repo.skus["sku-1"].Quantity != 30 {
			t.Fatalf("expected sku quantity 30 after deduction, got %d", repo.skus["sku-1"].Quantity)
		}
	})

	t.Run("non-active block fails with current status", func(t *testing.T) {
		for _, status := range []domain.BlockStatus{
			domain.BlockStatusConverted,
			domain.BlockStatusCancelled,
			domain.BlockStatusExpired,
		} {
			repo := newFakeBlockRepo(
				[]domain.Sku{{ID: "sku-1", Quantity: 50}},
				[]domain.TemporaryBlock{
					{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: status, ExpiresAt: now.Add(10 * time.Minute)},
				},
			)
			svc := NewBlockService(repo, clock.NewFixed(now), nil)

			_, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{
				BlockID: "block-1",
				Reason:  "order shipped",
			})

			var transition *domain.InvalidTransitionError
			if !errors.As(err, &transition) {
				t.Fatalf("status %s: expected InvalidTransitionError, got %v", status, err)
			}
			if transition.Current != status {
				t.Fatalf("expected current status %s, got %s", status, transition.Current)
			}
			if repo.skus["sku-1"].Quantity != 50 {
				t.Fatalf("expected sku quantity unchanged, got %d", repo.skus["sku-1"].Quantity)
			}
		}
	})

	t.Run("logically expired block cannot be converted", func(t *testing.T) {
		repo := newFakeBlockRepo(
			[]domain.Sku{{ID: "sku-1", Quantity: 50}},
			[]domain.TemporaryBlock{
				{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: domain.BlockStatusActive, ExpiresAt: now.Add(-1 * time.Second)},
			},
		)
		svc := NewBlockService(repo, clock.NewFixed(now), nil)

		_, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{
			BlockID: "block-1",
			Reason:  "order shipped",
		})

		var transition *domain.InvalidTransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
		if transition.Current != domain.BlockStatusExpired {
			t.Fatalf("expected current status expired, got %s", transition.Current)
		}
	})

	t.Run("missing block returns error", func(t *testing.T) {
		svc := NewBlockService(newFakeBlockRepo(nil, nil), clock.NewFixed(now), nil)

		_, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{
			BlockID: "missing",
			Reason:  "order shipped",
		})
		if err != domain.ErrBlockNotFound {
			t.Fatalf("expected ErrBlockNotFound, got %v", err)
		}
	})

	t.Run("deduction failure rolls the transition back", func(t *testing.T) {
		repo := newFakeBlockRepo(
			[]domain.Sku{{ID: "sku-1", Quantity: 50}},
			[]domain.TemporaryBlock{
				{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: domain.BlockStatusActive, ExpiresAt: now.Add(10 * time.Minute)},
			},
		)
		repo.deductErr = errors.New("boom")
		svc := NewBlockService(repo, clock.NewFixed(now), nil)

		_, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{
			BlockID: "block-1",
			Reason:  "order shipped",
		})
		if err == nil {
			t.Fatalf("expected error")
		}
		if repo.blocks["block-1"].Status != domain.BlockStatusActive {
			t.Fatalf("expected block still active after rollback, got %s", repo.blocks["block-1"].Status)
		}
		if repo.skus["sku-1"].Quantity != 50 {
			t.Fatalf("expected sku quantity unchanged after rollback, got %d", repo.skus["sku-1"].Quantity)
		}
	})
}

func TestBlockService_CancelBlock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("cancels active block without touching the sku", func(t *testing.T) {
		repo := newFakeBlockRepo(
			[]domain.Sku{{ID: "sku-1", Quantity: 50}},
			[]domain.TemporaryBlock{
				{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: domain.BlockStatusActive, ExpiresAt: now.Add(10 * time.Minute)},
			},
		)
		svc := NewBlockService(repo, clock.NewFixed(now), nil)

		block, err := svc.CancelBlock(context.Background(), TransitionBlockInput{
			BlockID: "block-1",
			Reason:  "customer changed mind",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if block.Status != domain.BlockStatusCancelled {
			t.Fatalf("expected status cancelled, got %s", block.Status)
		}
		if block.CancelledAt == nil || !block.CancelledAt.Equal(now) {
			t.Fatalf("expected cancelled_at %v, got %v", now, block.CancelledAt)
		}
		if repo.skus["sku-1"].Quantity != 50 {
			t.Fatalf("expected sku quantity untouched, got %d", repo.skus["sku-1"].Quantity)
		}
	})

	t.Run("cancelled block cannot be cancelled or converted again", func(t *testing.T) {
		repo := newFakeBlockRepo(
			[]domain.Sku{{ID: "sku-1", Quantity: 50}},
			[]domain.TemporaryBlock{
				{ID: "block-1", SkuID: "sku-1", Quantity: 20, Status: domain.BlockStatusCancelled, ExpiresAt: now.Add(10 * time.Minute)},
			},
		)
		svc := NewBlockService(repo, clock.NewFixed(now), nil)

		for _, call := range []func() error{
			func() error {
				_, err := svc.CancelBlock(context.Background(), TransitionBlockInput{BlockID: "block-1", Reason: "again"})
				return err
			},
			func() error {
				_, err := svc.ConvertToPermanent(context.Background(), TransitionBlockInput{BlockID: "block-1", Reason: "again"})
				return err
			},
		} {
			var transition *domain.InvalidTransitionError
			if err := call(); !errors.As(err, &transition) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			} else if transition.Current != domain.BlockStatusCancelled {
				t.Fatalf("expected current status cancelled, got %s", transition.Current)
			}
		}
	})
}

func TestBlockService_ListActiveBlocks(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)

	repo := newFakeBlockRepo(
		[]domain.Sku{{ID: "sku-1", Code: "WIDGET-1", Quantity: 100}},
		[]domain.TemporaryBlock{
			{ID: "old", SkuID: "sku-1", Quantity: 5, Status: domain.BlockStatusActive, ExpiresAt: now.Add(time.Hour), CreatedAt: now.Add(-2 * time.Hour)},
			{ID: "new", SkuID: "sku-1", Quantity: 5, Status: domain.BlockStatusActive, ExpiresAt: now.Add(time.Hour), CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "done", SkuID: "sku-1", Quantity: 5, Status: domain.BlockStatusConverted, ExpiresAt: now.Add(time.Hour), CreatedAt: now},
			{ID: "overdue", SkuID: "sku-1", Quantity: 5, Status: domain.BlockStatusActive, ExpiresAt: now.Add(-time.Minute), CreatedAt: now},
		},
	)
	svc := NewBlockService(repo, clock.NewFixed(now), nil)

	blocks, err := svc.ListActiveBlocks(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 active blocks, got %d", len(blocks))
	}
	if blocks[0].ID != "new" || blocks[1].ID != "old" {
		t.Fatalf("expected newest first, got %s then %s", blocks[0].ID, blocks[1].ID)
	}
	if blocks[0].SkuCode != "WIDGET-1" {
		t.Fatalf("expected sku code joined, got %q", blocks[0].SkuCode)
	}
}

type fakeBlockRepo struct {
	skus      map[string]domain.Sku
	blocks    map[string]domain.TemporaryBlock
	order     []string
	deductErr error

	// snapshots taken at WithTx entry so a returned error restores state,
	// mimicking a rolled-back transaction.
	txSkus   map[string]domain.Sku
	txBlocks map[string]domain.TemporaryBlock
	txOrder  []string
}

func newFakeBlockRepo(skus []domain.Sku, blocks []domain.TemporaryBlock) *fakeBlockRepo {
	s := make(map[string]domain.Sku)
	for _, sku := range skus {
		s[sku.ID] = sku
	}
	b := make(map[string]domain.TemporaryBlock)
	var order []string
	for _, block := range blocks {
		b[block.ID] = block
		order = append(order, block.ID)
	}
	return &fakeBlockRepo{skus: s, blocks: b, order: order}
}

func (f *fakeBlockRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txSkus = make(map[string]domain.Sku, len(f.skus))
	for k, v := range f.skus {
		f.txSkus[k] = v
	}
	f.txBlocks = make(map[string]domain.TemporaryBlock, len(f.blocks))
	for k, v := range f.blocks {
		f.txBlocks[k] = v
	}
	f.txOrder = append([]string{}, f.order...)

	if err := fn(ctx); err != nil {
		f.skus = f.txSkus
		f.blocks = f.txBlocks
		f.order = f.txOrder
		return err
	}
	return nil
}

func (f *fakeBlockRepo) GetSkuForUpdate(_ context.Context, skuID string) (domain.Sku, error) {
	sku, ok := f.skus[skuID]
	if !ok {
		return domain.Sku{}, domain.ErrSkuNotFound
	}
	return sku, nil
}

func (f *fakeBlockRepo) SumActiveBlocks(_ context.Context, skuID string, now time.Time) (int, error) {
	total := 0
	for _, b := range f.blocks {
		if b.SkuID != skuID || b.Status != domain.BlockStatusActive {
			continue
		}
		if !b.ExpiresAt.After(now) {
			continue
		}
		total += b.Quantity
	}
	return total, nil
}

func (f *fakeBlockRepo) CreateBlock(_ context.Context, block domain.TemporaryBlock) error {
	f.blocks[block.ID] = block
	f.order = append(f.order, block.ID)
	return nil
}

func (f *fakeBlockRepo) GetBlockForUpdate(_ context.Context, blockID string) (domain.TemporaryBlock, error) {
	block, ok := f.blocks[blockID]
	if !ok {
		return domain.TemporaryBlock{}, domain.ErrBlockNotFound
	}
	return block, nil
}

func (f *fakeBlockRepo) MarkConverted(_ context.Context, blockID, reason string, at time.Time) error {
	block, ok := f.blocks[blockID]
	if !ok || block.Status != domain.BlockStatusActive {
		return domain.ErrBlockNotFound
	}
	block.Status = domain.BlockStatusConverted
	block.Reason = reason
	block.ConvertedAt = &at
	f.blocks[blockID] = block
	return nil
}

func (f *fakeBlockRepo) MarkCancelled(_ context.Context, blockID, reason string, at time.Time) error {
	block, ok := f.blocks[blockID]
	if !ok || block.Status != domain.BlockStatusActive {
		return domain.ErrBlockNotFound
	}
	block.Status = domain.BlockStatusCancelled
	block.Reason = reason
	block.CancelledAt = &at
	f.blocks[blockID] = block
	return nil
}

func (f *fakeBlockRepo) DeductSkuQuantity(_ context.Context, skuID string, quantity int) error {
	if f.deductErr != nil {
		return f.deductErr
	}
	sku, ok := f.skus[skuID]
	if !ok {
		return domain.ErrSkuNotFound
	}
	sku.Quantity -= quantity
	f.skus[skuID] = sku
	return nil
}

func (f *fakeBlockRepo) ListActiveBlocks(_ context.Context, now time.Time) ([]domain.ActiveBlock, error) {
	var blocks []domain.ActiveBlock
	for _, id := range f.order {
		b := f.blocks[id]
		if b.Status != domain.BlockStatusActive || !b.ExpiresAt.After(now) {
			continue
		}
		blocks = append(blocks, domain.ActiveBlock{
			TemporaryBlock: b,
			SkuCode:        f.skus[b.SkuID].Code,
		})
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	return blocks, nil
}
