package domain

import "time"

type BlockStatus string

const (
	BlockStatusActive    BlockStatus = "active"
	BlockStatusConverted BlockStatus = "converted"
	BlockStatusCancelled BlockStatus = "cancelled"
	BlockStatusExpired   BlockStatus = "expired"
)

// TemporaryBlock reserves part of a SKU's quantity for a limited time.
// Once the status leaves active it never changes again.
type TemporaryBlock struct {
	ID          string
	SkuID       string
	Quantity    int
	Reason      string
	Status      BlockStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	ConvertedAt *time.Time
	CancelledAt *time.Time
}

// EffectiveStatus treats an active block whose expiry has passed as expired,
// even if the sweeper has not flipped the stored status yet.
func (b TemporaryBlock) EffectiveStatus(now time.Time) BlockStatus {
	if b.Status == BlockStatusActive && !b.ExpiresAt.After(now) {
		return BlockStatusExpired
	}
	return b.Status
}

// ActiveBlock pairs a block with the owning SKU's code for display.
type ActiveBlock struct {
	TemporaryBlock
	SkuCode string
}
