package entity

import (
	"time"

	"github.com/google/uuid"
)

// BlockReason records which check classified a proxy as blocked.
type BlockReason string

const (
	BlockReasonStatus    BlockReason = "status"
	BlockReasonPredicate BlockReason = "predicate"
	BlockReasonTransport BlockReason = "transport"
	BlockReasonManual    BlockReason = "manual"
)

// BlockEvent mirrors the `proxy_block_events` PostgreSQL table schema.
type BlockEvent struct {
	ID         uuid.UUID
	TargetID   string
	ProxyID    int64
	Reason     BlockReason
	StatusCode int    // zero for transport failures
	Error      string // empty for response-based blocks
	OccurredAt time.Time
}

// NewBlockEvent stamps a new event with a random id and the current time.
func NewBlockEvent(targetID string, proxyID int64, reason BlockReason) *BlockEvent {
	return &BlockEvent{
		ID:         uuid.New(),
		TargetID:   targetID,
		ProxyID:    proxyID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
