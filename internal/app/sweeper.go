package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lmoreno/stockblock/internal/clock"
	"github.com/lmoreno/stockblock/internal/domain"
)

type SweeperRepository interface {
	ExpireOverdueBlocks(ctx context.Context, now time.Time) ([]domain.TemporaryBlock, error)
}

// Sweeper periodically flips overdue active blocks to the stored expired
// status. Readers already treat such blocks as expired, so a late or missed
// sweep never affects correctness; the sweep only converges the stored view.
type Sweeper struct {
	repo     SweeperRepository
	clock    clock.Clock
	events   Publisher
	interval time.Duration
	logger   zerolog.Logger
}

const defaultSweepInterval = time.Minute

func NewSweeper(repo SweeperRepository, clk clock.Clock, events Publisher, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if events == nil {
		events = NopPublisher()
	}
	return &Sweeper{
		repo:     repo,
		clock:    clk,
		events:   events,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass. Exported so the wiring layer can run one
// sweep at startup before the ticker takes over.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()

	expired, err := s.repo.ExpireOverdueBlocks(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, block := range expired {
		ev := BlockEvent{
			Type:       EventBlockExpired,
			BlockID:    block.ID,
			SkuID:      block.SkuID,
			Quantity:   block.Quantity,
			OccurredAt: now,
		}
		if err := s.events.PublishBlockEvent(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("block_id", block.ID).Msg("publish expiry event failed")
		}
	}
	s.logger.Info().Int("count", len(expired)).Msg("expired overdue blocks")
}
