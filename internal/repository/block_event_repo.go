package repository

import (
	"context"

	"github.com/user/proxyservice/internal/entity"
)

// BlockEventRepository defines the interface for the block event audit log.
type BlockEventRepository interface {
	// Save appends a block event.
	Save(ctx context.Context, event *entity.BlockEvent) error
	// FindRecent retrieves the latest events for a target, newest first.
	FindRecent(ctx context.Context, targetID string, limit int) ([]*entity.BlockEvent, error)
}
