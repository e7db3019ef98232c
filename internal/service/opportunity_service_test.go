package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarlyst/arbmonitor/internal/arbitrage"
	"github.com/polarlyst/arbmonitor/internal/domain"
	"github.com/polarlyst/arbmonitor/internal/matcher"
)

type fakeSource struct {
	markets []domain.Market
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (f *fakeSource) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

func kalshiSide(yes float64) []domain.Market {
	return []domain.Market{{
		ID:       "K1",
		Platform: domain.PlatformKalshi,
		Title:    "Bitcoin above 100k December 2025",
		YesPrice: yes,
		NoPrice:  1 - yes,
	}}
}

func polySide(yes float64) []domain.Market {
	return []domain.Market{{
		ID:       "P1",
		Platform: domain.PlatformPolymarket,
		Title:    "Bitcoin above 100k December 2025",
		YesPrice: yes,
		NoPrice:  1 - yes,
	}}
}

func newService(kalshi, poly *fakeSource, cfg Config, opts Options) *OpportunityService {
	return NewOpportunityService(
		kalshi, poly,
		matcher.New(60, nil),
		arbitrage.NewCalculator(0.5, nil),
		cfg, opts, nil,
	)
}

func TestGetOpportunitiesRefreshesAndCaches(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 1)
	assert.InDelta(t, 5.0, snap.Opportunities[0].SpreadPct, 1e-9)
	assert.Equal(t, 1, snap.KalshiCount)
	assert.Equal(t, 1, snap.PolyCount)

	// Second read inside the TTL serves the cached snapshot.
	_, err = svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), kalshi.calls.Load())
	assert.Equal(t, int64(1), poly.calls.Load())
}

func TestGetOpportunitiesTTLExpiry(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: 20 * time.Millisecond}, Options{})

	_, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, svc.Stale())

	_, err = svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), kalshi.calls.Load())
}

func TestGetOpportunitiesForceRefresh(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	_, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	_, err = svc.GetOpportunities(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), kalshi.calls.Load())
}

func TestGetOpportunitiesSharedRefresh(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45), delay: 50 * time.Millisecond}
	poly := &fakeSource{markets: polySide(0.40), delay: 50 * time.Millisecond}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOpportunities(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// All four callers share one in-flight refresh.
	assert.Equal(t, int64(1), kalshi.calls.Load())
	assert.Equal(t, int64(1), poly.calls.Load())
}

func TestRefreshOneSourceDown(t *testing.T) {
	kalshi := &fakeSource{err: errors.New("connection refused")}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, snap.Opportunities)
	assert.Equal(t, 0, snap.KalshiCount)
	assert.Equal(t, 1, snap.PolyCount)
	assert.Contains(t, snap.KalshiErr, "connection refused")
	assert.Empty(t, snap.PolyErr)
}

func TestRefreshBothSourcesDown(t *testing.T) {
	kalshi := &fakeSource{err: errors.New("kalshi down")}
	poly := &fakeSource{err: errors.New("poly down")}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	// A total outage degrades to an empty snapshot carrying both error
	// strings, never a hard error.
	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, snap.Opportunities)
	assert.Zero(t, snap.KalshiCount)
	assert.Zero(t, snap.PolyCount)
	assert.Contains(t, snap.KalshiErr, "kalshi down")
	assert.Contains(t, snap.PolyErr, "poly down")

	// The failed refresh still advances the clock and the history, so
	// the TTL keeps absorbing reads during the outage.
	assert.False(t, svc.LastFetch().IsZero())
	assert.Len(t, svc.History(), 1)

	_, err = svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), kalshi.calls.Load())
	assert.Equal(t, int64(1), poly.calls.Load())
}

func TestAlertThreshold(t *testing.T) {
	// 5% spread clears the 3% alert threshold.
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute, AlertThresholdPct: 3.0}, Options{})

	_, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	alerts := svc.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertHighOpportunity, alerts[0].Type)
	assert.Equal(t, "Bitcoin above 100k December 2025", alerts[0].Title)
	assert.InDelta(t, 5.0, alerts[0].SpreadPct, 1e-9)
	assert.Contains(t, alerts[0].Message, "Bitcoin above 100k")
}

func TestAlertBelowThreshold(t *testing.T) {
	// Poly YES at 0.421 gives a 2.9% spread, just under the bar.
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.421)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute, AlertThresholdPct: 3.0}, Options{})

	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 1)
	assert.InDelta(t, 2.9, snap.Opportunities[0].SpreadPct, 1e-6)
	assert.Empty(t, svc.Alerts())
}

func TestHistoryBounded(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute, HistoryLimit: 3}, Options{})

	for i := 0; i < 5; i++ {
		_, err := svc.GetOpportunities(context.Background(), true)
		require.NoError(t, err)
	}

	history := svc.History()
	assert.Len(t, history, 3)
	for _, p := range history {
		assert.Equal(t, 1, p.Count)
		assert.InDelta(t, 5.0, p.TopSpread, 1e-9)
	}
}

func TestTopLimits(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{})

	_, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)

	assert.Len(t, svc.Top(10), 1)
	assert.Len(t, svc.Top(1), 1)
	assert.Len(t, svc.Top(0), 1)
}

type capturingBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *capturingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *capturingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

type fakeSnapshotCache struct {
	mu          sync.Mutex
	snap        domain.Snapshot
	getErr      error
	sets        int
	invalidates int
}

func (c *fakeSnapshotCache) SetSnapshot(_ context.Context, snap domain.Snapshot, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.sets++
	return nil
}

func (c *fakeSnapshotCache) GetSnapshot(context.Context) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.Snapshot{}, c.getErr
	}
	return c.snap, nil
}

func (c *fakeSnapshotCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
	return nil
}

func TestWarmStartFromSharedSnapshot(t *testing.T) {
	// Another instance published a fresh snapshot; a cold process
	// serves it without touching the upstreams.
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	cache := &fakeSnapshotCache{snap: domain.Snapshot{
		Opportunities: []domain.Opportunity{{ID: "shared", SpreadPct: 4.2}},
		KalshiCount:   7,
		PolyCount:     9,
		FetchedAt:     time.Now().UTC().Add(-time.Second),
	}}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{SnapshotCache: cache})

	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 1)
	assert.Equal(t, "shared", snap.Opportunities[0].ID)
	assert.Zero(t, kalshi.calls.Load())
	assert.Zero(t, poly.calls.Load())
	assert.Equal(t, cache.snap.FetchedAt, svc.LastFetch())
}

func TestWarmStartIgnoresStaleSharedSnapshot(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	cache := &fakeSnapshotCache{snap: domain.Snapshot{
		Opportunities: []domain.Opportunity{{ID: "old"}},
		FetchedAt:     time.Now().UTC().Add(-time.Hour),
	}}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{SnapshotCache: cache})

	snap, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, snap.Opportunities, 1)
	assert.NotEqual(t, "old", snap.Opportunities[0].ID)
	assert.Equal(t, int64(1), kalshi.calls.Load())
}

func TestForceRefreshInvalidatesShared(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	cache := &fakeSnapshotCache{}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{SnapshotCache: cache})

	_, err := svc.GetOpportunities(context.Background(), true)
	require.NoError(t, err)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, 1, cache.invalidates)
	assert.Equal(t, 1, cache.sets)
}

type fakeOpportunityStore struct {
	deletedBefore time.Time
	deleted       int64
}

func (s *fakeOpportunityStore) InsertBatch(context.Context, []domain.Opportunity) error { return nil }
func (s *fakeOpportunityStore) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	return nil, nil
}
func (s *fakeOpportunityStore) ListSince(context.Context, domain.ListOpts) ([]domain.Opportunity, error) {
	return nil, nil
}
func (s *fakeOpportunityStore) Count(context.Context) (int64, error) { return 0, nil }
func (s *fakeOpportunityStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deletedBefore = before
	return s.deleted, nil
}

type fakeAlertStore struct {
	deletedBefore time.Time
}

func (s *fakeAlertStore) Insert(context.Context, domain.Alert) error { return nil }
func (s *fakeAlertStore) ListRecent(context.Context, int) ([]domain.Alert, error) {
	return nil, nil
}
func (s *fakeAlertStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deletedBefore = before
	return 0, nil
}

func TestPruneDeletesFromBothStores(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	oppStore := &fakeOpportunityStore{deleted: 3}
	alertStore := &fakeAlertStore{}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute},
		Options{Store: oppStore, AlertStore: alertStore})

	cutoff := time.Now().UTC().Add(-72 * time.Hour)
	svc.Prune(context.Background(), cutoff)

	assert.Equal(t, cutoff, oppStore.deletedBefore)
	assert.Equal(t, cutoff, alertStore.deletedBefore)
}

func TestRefreshPublishesToBus(t *testing.T) {
	kalshi := &fakeSource{markets: kalshiSide(0.45)}
	poly := &fakeSource{markets: polySide(0.40)}
	bus := &capturingBus{}
	svc := newService(kalshi, poly, Config{CacheTTL: time.Minute}, Options{Bus: bus})

	_, err := svc.GetOpportunities(context.Background(), false)
	require.NoError(t, err)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Len(t, bus.messages[ChannelRefresh], 1)
	assert.Len(t, bus.messages[ChannelAlerts], 1)
}
