package proxy

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/pkg/metrics"
)

func newTestManager(t *testing.T, inv *fakeInventory) (*Manager, *metrics.Metrics) {
	t.Helper()
	mt := metrics.New(prometheus.NewRegistry())
	return NewManager(inv, WithLogger(zaptest.NewLogger(t)), WithMetrics(mt)), mt
}

func testUnit(name, target string) entity.Unit {
	u := entity.DefaultUnit(name, target)
	u.Filters.Length = 2
	return u
}

func TestManager_OpenLoadsPool(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1, 2)}}
	m, mt := newTestManager(t, inv)

	require.NoError(t, m.Open(context.Background(), testUnit("spider", "t1")))

	assert.True(t, m.Uses("spider"))
	snap, ok := m.Snapshot("t1")
	require.True(t, ok)
	assert.Len(t, snap.Records, 2)
	assert.Equal(t, 1, snap.Loads)
	assert.Equal(t, []string{"spider"}, snap.Units)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, "t1", inv.calls[0].target)
	assert.Equal(t, 2, inv.calls[0].filters.Length)
	assert.Empty(t, inv.calls[0].exclude)

	assert.Equal(t, 1.0, testutil.ToFloat64(mt.PoolReloadsTotal.WithLabelValues("t1", TriggerInitial, "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mt.PoolSize.WithLabelValues("t1")))
}

func TestManager_OpenRejectsInvalidUnit(t *testing.T) {
	m, _ := newTestManager(t, &fakeInventory{})

	err := m.Open(context.Background(), entity.Unit{Name: "spider"})
	assert.ErrorIs(t, err, entity.ErrInvalidUnit)
	assert.False(t, m.Uses("spider"))
}

func TestManager_FailedOpenKeepsUnitRegistered(t *testing.T) {
	boom := errors.New("inventory down")
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1)}, err: boom}
	m, _ := newTestManager(t, inv)
	unit := testUnit("spider", "t1")

	err := m.Open(context.Background(), unit)
	assert.ErrorIs(t, err, boom)
	assert.True(t, m.Uses("spider"))

	inv.setErr(nil)
	rec, err := m.ProxyFor(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
}

func TestManager_ProxyForUnitNotOpen(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1)}}
	m, _ := newTestManager(t, inv)

	_, err := m.ProxyFor(context.Background(), testUnit("spider", "t1"))
	assert.ErrorIs(t, err, ErrUnitNotOpen)
	assert.Zero(t, inv.callCount())
}

func TestManager_ProxyForRoundRobin(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1, 2, 3)}}
	m, _ := newTestManager(t, inv)
	unit := testUnit("spider", "t1")
	unit.Algorithm = entity.AlgorithmRoundRobin
	require.NoError(t, m.Open(context.Background(), unit))

	var got []int64
	for i := 0; i < 4; i++ {
		rec, err := m.ProxyFor(context.Background(), unit)
		require.NoError(t, err)
		got = append(got, rec.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 1}, got)
	assert.Equal(t, 1, inv.callCount())
}

func TestManager_ExhaustedPoolReloadsOnce(t *testing.T) {
	inv := &fakeInventory{}
	m, mt := newTestManager(t, inv)
	unit := testUnit("spider", "t1")
	require.NoError(t, m.Open(context.Background(), unit))
	require.Equal(t, 1, inv.callCount())

	_, err := m.ProxyFor(context.Background(), unit)
	assert.ErrorIs(t, err, ErrNoProxyAvailable)
	assert.Equal(t, 2, inv.callCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.PoolReloadsTotal.WithLabelValues("t1", TriggerExhausted, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.SelectionsTotal.WithLabelValues("t1", "unavailable")))
}

func TestManager_ExhaustedPoolRefilled(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{{}, records(7)}}
	m, _ := newTestManager(t, inv)
	unit := testUnit("spider", "t1")
	require.NoError(t, m.Open(context.Background(), unit))

	rec, err := m.ProxyFor(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
}

func TestManager_ProxyForReloadFailure(t *testing.T) {
	inv := &fakeInventory{}
	m, _ := newTestManager(t, inv)
	unit := testUnit("spider", "t1")
	require.NoError(t, m.Open(context.Background(), unit))

	boom := errors.New("inventory down")
	inv.setErr(boom)

	_, err := m.ProxyFor(context.Background(), unit)
	assert.ErrorIs(t, err, ErrNoProxyAvailable)
	assert.ErrorIs(t, err, boom)
}

func TestManager_ReportBlockedExcludesProxy(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1, 2), records(2, 3)}}
	m, mt := newTestManager(t, inv)
	require.NoError(t, m.Open(context.Background(), testUnit("spider", "t1")))

	require.NoError(t, m.ReportBlocked(context.Background(), "t1", 1))

	require.Len(t, inv.calls, 2)
	assert.Equal(t, []int64{1}, inv.calls[1].exclude)
	assert.Equal(t, 2, inv.calls[1].filters.Length)

	snap, _ := m.Snapshot("t1")
	assert.Equal(t, []int64{2, 3}, entity.ProxyIDs(snap.Records))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.PoolReloadsTotal.WithLabelValues("t1", TriggerBlocked, "ok")))
}

func TestManager_ReportBlockedUnknownTarget(t *testing.T) {
	inv := &fakeInventory{}
	m, _ := newTestManager(t, inv)

	assert.NoError(t, m.ReportBlocked(context.Background(), "nope", 1))
	assert.Zero(t, inv.callCount())
}

func TestManager_ReportBlockedFailureKeepsPool(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1, 2)}}
	m, _ := newTestManager(t, inv)
	require.NoError(t, m.Open(context.Background(), testUnit("spider", "t1")))

	boom := errors.New("inventory down")
	inv.setErr(boom)

	assert.ErrorIs(t, m.ReportBlocked(context.Background(), "t1", 1), boom)
	snap, _ := m.Snapshot("t1")
	assert.Equal(t, []int64{1, 2}, entity.ProxyIDs(snap.Records))
}

func TestManager_CloseReleasesPoolWhenUnused(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1)}}
	m, _ := newTestManager(t, inv)
	require.NoError(t, m.Open(context.Background(), testUnit("a", "t1")))
	require.NoError(t, m.Open(context.Background(), testUnit("b", "t1")))

	// the second open finds the pool filled
	assert.Equal(t, 1, inv.callCount())

	m.Close("a")
	assert.False(t, m.Uses("a"))
	_, ok := m.Snapshot("t1")
	assert.True(t, ok)

	m.Close("b")
	_, ok = m.Snapshot("t1")
	assert.False(t, ok)

	m.Close("b")
}

func TestManager_ReopenWithNewTarget(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1)}}
	m, _ := newTestManager(t, inv)
	require.NoError(t, m.Open(context.Background(), testUnit("a", "t1")))
	require.NoError(t, m.Open(context.Background(), testUnit("a", "t2")))

	_, ok := m.Snapshot("t1")
	assert.False(t, ok)
	u, ok := m.Unit("a")
	require.True(t, ok)
	assert.Equal(t, "t2", u.TargetID)
}

func TestManager_TargetsSorted(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1)}}
	m, _ := newTestManager(t, inv)
	require.NoError(t, m.Open(context.Background(), testUnit("b", "t2")))
	require.NoError(t, m.Open(context.Background(), testUnit("a", "t1")))

	targets := m.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "t1", targets[0].TargetID)
	assert.Equal(t, "t2", targets[1].TargetID)
}

func TestManager_TargetExists(t *testing.T) {
	m, _ := newTestManager(t, &fakeInventory{targets: map[string]bool{"t1": true}})

	ok, err := m.TargetExists(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TargetExists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_RandomSourceOption(t *testing.T) {
	inv := &fakeInventory{lists: [][]entity.ProxyRecord{records(1, 2, 3)}}
	m := NewManager(inv, WithRandom(func(n int) int { return 0 }))
	unit := testUnit("spider", "t1")
	unit.Filters.Length = 3
	require.NoError(t, m.Open(context.Background(), unit))

	for i := 0; i < 5; i++ {
		rec, err := m.ProxyFor(context.Background(), unit)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.ID)
	}
}

func TestManager_CloseDuringReloadDropsPoolSize(t *testing.T) {
	inv := &fakeInventory{
		lists:   [][]entity.ProxyRecord{records(1, 2)},
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	m, mt := newTestManager(t, inv)

	done := make(chan error, 1)
	go func() { done <- m.Open(context.Background(), testUnit("spider", "t1")) }()

	<-inv.started
	m.Close("spider")
	close(inv.gate)
	require.NoError(t, <-done)

	_, ok := m.Snapshot("t1")
	assert.False(t, ok)
	assert.Equal(t, 0, testutil.CollectAndCount(mt.PoolSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.PoolReloadsTotal.WithLabelValues("t1", TriggerInitial, "ok")))
}
