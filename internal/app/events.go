package app

import (
	"context"
	"time"
)

const (
	EventBlockCreated   = "block.created"
	EventBlockConverted = "block.converted"
	EventBlockCancelled = "block.cancelled"
	EventBlockExpired   = "block.expired"
)

// BlockEvent describes a lifecycle change of a temporary block, published
// for interested consumers after the owning transaction has committed.
type BlockEvent struct {
	Type       string    `json:"type"`
	BlockID    string    `json:"block_id"`
	SkuID      string    `json:"sku_id"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers block lifecycle events. Implementations must tolerate
// being called concurrently.
type Publisher interface {
	PublishBlockEvent(ctx context.Context, ev BlockEvent) error
}

type nopPublisher struct{}

// NopPublisher returns a publisher that discards every event. Used when no
// broker is configured.
func NopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishBlockEvent(context.Context, BlockEvent) error {
	return nil
}
