package proxy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/repository"
	"github.com/user/proxyservice/pkg/metrics"
)

// ErrUnitNotOpen is returned by ProxyFor for a unit that was never opened or is already closed.
var ErrUnitNotOpen = errors.New("crawling unit is not open")

// Reload triggers, used as metric labels.
const (
	TriggerInitial   = "initial"
	TriggerExhausted = "exhausted"
	TriggerBlocked   = "blocked"
)

// Manager owns one Pool per target and the registry of open crawling units.
type Manager struct {
	inventory repository.InventoryRepository
	logger    *zap.Logger
	metrics   *metrics.Metrics
	intn      func(n int) int

	mu    sync.RWMutex
	units map[string]entity.Unit
	pools map[string]*Pool
	refs  map[string]int
}

type ManagerOption func(*Manager)

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithRandom replaces the random index source used by random-selection pools.
func WithRandom(intn func(n int) int) ManagerOption {
	return func(m *Manager) { m.intn = intn }
}

func NewManager(inventory repository.InventoryRepository, opts ...ManagerOption) *Manager {
	m := &Manager{
		inventory: inventory,
		logger:    zap.NewNop(),
		units:     make(map[string]entity.Unit),
		pools:     make(map[string]*Pool),
		refs:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNop()
	}
	return m
}

// Open registers a crawling unit and loads its target's pool.
// The unit stays registered when the first load fails; later selections retry the load.
func (m *Manager) Open(ctx context.Context, unit entity.Unit) error {
	if err := unit.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	prev, reopened := m.units[unit.Name]
	if !reopened || prev.TargetID != unit.TargetID {
		if reopened {
			m.release(prev)
		}
		m.refs[unit.TargetID]++
	}
	m.units[unit.Name] = unit
	pool := m.poolLocked(unit)
	m.mu.Unlock()

	m.logger.Info("Crawling unit opened",
		zap.String("unit", unit.Name),
		zap.String("target", unit.TargetID),
		zap.String("algorithm", unit.Algorithm.String()),
	)

	if err := m.reload(ctx, pool, SettingsOf(unit), nil, TriggerInitial); err != nil {
		return fmt.Errorf("loading proxies for target %s: %w", unit.TargetID, err)
	}
	return nil
}

// Close deregisters a crawling unit. The target's pool is dropped once no open unit uses it.
func (m *Manager) Close(unitName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit, ok := m.units[unitName]
	if !ok {
		return
	}
	delete(m.units, unitName)
	m.release(unit)
	m.logger.Info("Crawling unit closed", zap.String("unit", unitName), zap.String("target", unit.TargetID))
}

// release drops one reference to the unit's target. Callers hold mu.
func (m *Manager) release(unit entity.Unit) {
	m.refs[unit.TargetID]--
	if m.refs[unit.TargetID] > 0 {
		return
	}
	delete(m.refs, unit.TargetID)
	delete(m.pools, unit.TargetID)
	m.metrics.PoolSize.DeleteLabelValues(unit.TargetID)
}

// poolLocked returns the target's pool, creating an empty one if needed. Callers hold mu.
func (m *Manager) poolLocked(unit entity.Unit) *Pool {
	pool, ok := m.pools[unit.TargetID]
	if !ok {
		pool = NewPool(unit.TargetID, m.inventory, SettingsOf(unit), m.intn)
		m.pools[unit.TargetID] = pool
	}
	return pool
}

// Uses reports whether the named unit is open.
func (m *Manager) Uses(unitName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.units[unitName]
	return ok
}

// Unit returns the configuration an open unit registered with.
func (m *Manager) Unit(unitName string) (entity.Unit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[unitName]
	return u, ok
}

// ProxyFor selects the next proxy for an open unit.
// An empty pool is reloaded exactly once before giving up with ErrNoProxyAvailable.
func (m *Manager) ProxyFor(ctx context.Context, unit entity.Unit) (entity.ProxyRecord, error) {
	m.mu.Lock()
	if _, ok := m.units[unit.Name]; !ok {
		m.mu.Unlock()
		return entity.ProxyRecord{}, fmt.Errorf("%w: %s", ErrUnitNotOpen, unit.Name)
	}
	_, existed := m.pools[unit.TargetID]
	pool := m.poolLocked(unit)
	m.mu.Unlock()

	if rec, err := pool.Next(); err == nil {
		m.metrics.SelectionsTotal.WithLabelValues(unit.TargetID, "ok").Inc()
		return rec, nil
	}

	trigger := TriggerExhausted
	if !existed {
		trigger = TriggerInitial
	}
	if err := m.reload(ctx, pool, SettingsOf(unit), nil, trigger); err != nil {
		m.metrics.SelectionsTotal.WithLabelValues(unit.TargetID, "error").Inc()
		return entity.ProxyRecord{}, fmt.Errorf("%w: %w", ErrNoProxyAvailable, err)
	}

	rec, err := pool.Next()
	if err != nil {
		m.metrics.SelectionsTotal.WithLabelValues(unit.TargetID, "unavailable").Inc()
		return entity.ProxyRecord{}, ErrNoProxyAvailable
	}
	m.metrics.SelectionsTotal.WithLabelValues(unit.TargetID, "ok").Inc()
	return rec, nil
}

// ReportBlocked replaces the target's pool with a fresh list that excludes proxyID.
// It is a no-op when the target has no pool.
func (m *Manager) ReportBlocked(ctx context.Context, targetID string, proxyID int64) error {
	pool, ok := m.pool(targetID)
	if !ok {
		m.logger.Debug("Blocked proxy reported for unknown target",
			zap.String("target", targetID), zap.Int64("proxy_id", proxyID))
		return nil
	}

	m.logger.Info("Proxy blocked, reloading pool",
		zap.String("target", targetID), zap.Int64("proxy_id", proxyID))

	if err := m.reload(ctx, pool, pool.Settings(), []int64{proxyID}, TriggerBlocked); err != nil {
		return fmt.Errorf("reloading pool for target %s: %w", targetID, err)
	}
	return nil
}

// TargetExists asks the inventory service whether it knows the target.
func (m *Manager) TargetExists(ctx context.Context, targetID string) (bool, error) {
	return m.inventory.TargetExists(ctx, targetID)
}

func (m *Manager) reload(ctx context.Context, pool *Pool, settings Settings, excludeIDs []int64, trigger string) error {
	reloaded, err := pool.Reload(ctx, settings, excludeIDs)
	target := pool.Target()

	switch {
	case err != nil:
		m.metrics.PoolReloadsTotal.WithLabelValues(target, trigger, "error").Inc()
		m.logger.Error("Failed to reload proxy pool",
			zap.String("target", target),
			zap.String("trigger", trigger),
			zap.Int64s("exclude", excludeIDs),
			zap.Error(err),
		)
		return err
	case !reloaded:
		m.metrics.PoolReloadsTotal.WithLabelValues(target, trigger, "skipped").Inc()
		return nil
	}

	size := pool.Len()
	m.metrics.PoolReloadsTotal.WithLabelValues(target, trigger, "ok").Inc()

	// a pool released while this reload ran no longer reports its size
	m.mu.RLock()
	if m.pools[target] == pool {
		m.metrics.PoolSize.WithLabelValues(target).Set(float64(size))
	}
	m.mu.RUnlock()
	m.logger.Info("Proxy pool reloaded",
		zap.String("target", target),
		zap.String("trigger", trigger),
		zap.Int("size", size),
	)
	return nil
}

func (m *Manager) pool(targetID string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[targetID]
	return p, ok
}

// Snapshot returns a copy of a target pool's state.
func (m *Manager) Snapshot(targetID string) (PoolSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[targetID]
	if !ok {
		return PoolSnapshot{}, false
	}
	return m.snapshotLocked(p), true
}

// Targets returns snapshots of every pool, ordered by target id.
func (m *Manager) Targets() []PoolSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PoolSnapshot, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, m.snapshotLocked(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func (m *Manager) snapshotLocked(p *Pool) PoolSnapshot {
	s := p.snapshot()
	for name, u := range m.units {
		if u.TargetID == p.target {
			s.Units = append(s.Units, name)
		}
	}
	slices.Sort(s.Units)
	return s
}
