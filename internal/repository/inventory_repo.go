package repository

import (
	"context"
	"errors"

	"github.com/user/proxyservice/internal/entity"
)

// ErrMissingCredentials is returned when the inventory host, user or password is not configured.
var ErrMissingCredentials = errors.New("proxy service host, user and password must be set")

// InventoryRepository defines the contract for the proxy inventory service.
type InventoryRepository interface {
	// FetchProxies returns a fresh proxy list for a target, excluding the given proxy ids when possible.
	FetchProxies(ctx context.Context, targetID string, filters entity.Filters, excludeIDs []int64) ([]entity.ProxyRecord, error)
	// TargetExists reports whether the inventory service knows the target.
	TargetExists(ctx context.Context, targetID string) (bool, error)
}
