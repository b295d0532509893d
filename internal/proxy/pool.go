package proxy

import (
	"context"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/repository"
)

// Settings are the per-target options read on every load.
type Settings struct {
	Algorithm entity.Algorithm
	Filters   entity.Filters
}

// SettingsOf extracts the pool settings from a crawling unit.
func SettingsOf(u entity.Unit) Settings {
	return Settings{Algorithm: u.Algorithm, Filters: u.Filters}
}

// Pool holds the live proxy list of one target.
//
// The list is only ever replaced wholesale by a reload. Reloads of one pool never overlap:
// identical triggers arriving while one is in flight share its result, distinct ones wait their turn.
type Pool struct {
	target    string
	inventory repository.InventoryRepository
	intn      func(n int) int

	mu       sync.RWMutex
	settings Settings
	records  []entity.ProxyRecord
	cursor   int
	loadedAt time.Time
	loads    int

	reloadMu sync.Mutex
	flight   singleflight.Group
}

// NewPool creates an empty pool. intn picks random indexes; nil uses math/rand.
func NewPool(target string, inventory repository.InventoryRepository, settings Settings, intn func(n int) int) *Pool {
	if intn == nil {
		intn = rand.Intn
	}
	return &Pool{
		target:    target,
		inventory: inventory,
		intn:      intn,
		settings:  settings,
	}
}

func (p *Pool) Target() string { return p.target }

// Next selects a proxy without touching the network.
// Random draws uniformly with replacement; round robin advances the cursor and wraps.
func (p *Pool) Next() (entity.ProxyRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.records)
	if n == 0 {
		return entity.ProxyRecord{}, ErrPoolEmpty
	}

	if p.settings.Algorithm == entity.AlgorithmRoundRobin {
		rec := p.records[p.cursor%n]
		p.cursor = (p.cursor + 1) % n
		return rec, nil
	}
	return p.records[p.intn(n)], nil
}

// Len returns the number of proxies currently held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Settings returns the settings used by the last load.
func (p *Pool) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// ShouldReload applies the refill policy: a block event always reloads, otherwise only an empty pool does.
func (p *Pool) ShouldReload(excludeIDs []int64) bool {
	return len(excludeIDs) > 0 || p.Len() == 0
}

// Reload replaces the proxy list with a fresh one from the inventory service, excluding the given ids.
// It reports whether a fetch actually ran: an exhaustion reload finding the pool already refilled is skipped.
// On failure the previous list is kept.
func (p *Pool) Reload(ctx context.Context, settings Settings, excludeIDs []int64) (bool, error) {
	v, err, _ := p.flight.Do(reloadKey(excludeIDs), func() (interface{}, error) {
		p.reloadMu.Lock()
		defer p.reloadMu.Unlock()

		if !p.ShouldReload(excludeIDs) {
			return false, nil
		}
		return true, p.load(ctx, settings, excludeIDs)
	})
	reloaded, _ := v.(bool)
	return reloaded, err
}

func (p *Pool) load(ctx context.Context, settings Settings, excludeIDs []int64) error {
	records, err := p.inventory.FetchProxies(ctx, p.target, settings.Filters, excludeIDs)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	p.records = slices.Clone(records)
	p.cursor = 0
	p.loadedAt = time.Now()
	p.loads++
	return nil
}

// PoolSnapshot is a read-only copy of a pool's state.
type PoolSnapshot struct {
	TargetID  string
	Algorithm entity.Algorithm
	Records   []entity.ProxyRecord
	Cursor    int
	LoadedAt  time.Time
	Loads     int
	Units     []string
}

func (p *Pool) snapshot() PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolSnapshot{
		TargetID:  p.target,
		Algorithm: p.settings.Algorithm,
		Records:   slices.Clone(p.records),
		Cursor:    p.cursor,
		LoadedAt:  p.loadedAt,
		Loads:     p.loads,
	}
}

// reloadKey identifies a reload trigger: exhaustion reloads share the empty key,
// block reloads are keyed by their sorted exclude set.
func reloadKey(excludeIDs []int64) string {
	if len(excludeIDs) == 0 {
		return ""
	}
	ids := slices.Clone(excludeIDs)
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, "|")
}
