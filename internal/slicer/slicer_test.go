package slicer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinerlabs/gridseed/internal/cache"
	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/provider"
	"github.com/marinerlabs/gridseed/internal/seed"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingProvider wraps the mock and fails configured runs, counting
// every fetch.
type countingProvider struct {
	mu       sync.Mutex
	inner    *provider.Mock
	failRuns map[time.Time]bool
	fetches  int
}

func newCountingProvider() *countingProvider {
	return &countingProvider{
		inner:    provider.NewMock(provider.DefaultSeed),
		failRuns: make(map[time.Time]bool),
	}
}

func (p *countingProvider) Name() string { return p.inner.Name() }

func (p *countingProvider) Fetch(ctx context.Context, req provider.Request) (provider.Result, error) {
	p.mu.Lock()
	p.fetches++
	fail := p.failRuns[req.Run]
	p.mu.Unlock()
	if fail {
		return provider.Result{}, fmt.Errorf("%w: run %s not on archive", provider.ErrProvider, req.Run.Format(time.RFC3339))
	}
	return p.inner.Fetch(ctx, req)
}

func (p *countingProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// misshapenProvider answers every fetch with a grid that ignores the
// requested shape.
type misshapenProvider struct {
	fetches int
}

func (p *misshapenProvider) Name() string { return "mock_hres" }

func (p *misshapenProvider) Fetch(context.Context, provider.Request) (provider.Result, error) {
	p.fetches++
	return provider.Result{
		Latitudes:  []float64{20},
		Longitudes: []float64{-140},
		Variables:  map[string]seed.Grid{"u10": seed.NewGrid(1, 1, 1)},
	}, nil
}

// failingCache rejects every write.
type failingCache struct{}

func (failingCache) Load(string) (*seed.Seed, error) { return nil, nil }
func (failingCache) Save(string, *seed.Seed) error   { return errors.New("disk full") }

func testRequest(t *testing.T) Request {
	t.Helper()
	region, err := geo.NewRegion(20, 22, -140, -138)
	require.NoError(t, err)
	return Request{
		Region:        region,
		ForecastHours: 12,
		TimeStepHours: 3,
		Variables:     []string{"u10", "v10", "swh"},
	}
}

func newTestOrchestrator(t *testing.T, p provider.GriddedProvider, clock clockwork.Clock) *Orchestrator {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), quietLogger())
	require.NoError(t, err)

	o, err := New(Options{
		Provider: p,
		Cache:    store,
		Clock:    clock,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return o
}

func TestLatestRun(t *testing.T) {
	schedule := DefaultSchedule()

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"evening uses the 12Z run",
			time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		},
		{
			"morning uses the 00Z run",
			time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			"before 00Z publication falls to yesterday's 12Z",
			time.Date(2026, 8, 25, 5, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		},
		{
			"publication instant counts as available",
			time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			"just before midnight still the 12Z run",
			time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(schedule.LatestRun(tc.now)),
				"got %s", schedule.LatestRun(tc.now))
		})
	}

	t.Run("previous run is one cycle back", func(t *testing.T) {
		run := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		assert.True(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC).Equal(schedule.PreviousRun(run)))
	})
}

func TestFingerprint(t *testing.T) {
	o := newTestOrchestrator(t, newCountingProvider(), clockwork.NewFakeClock())
	req := testRequest(t)
	run := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	t.Run("deterministic and order-insensitive", func(t *testing.T) {
		first := o.Fingerprint(req, run)
		assert.Equal(t, first, o.Fingerprint(req, run))

		shuffled := req
		shuffled.Variables = []string{"swh", "u10", "v10"}
		assert.Equal(t, first, o.Fingerprint(shuffled, run))
	})

	t.Run("sensitive to variables, run and horizon", func(t *testing.T) {
		base := o.Fingerprint(req, run)

		moreVars := req
		moreVars.Variables = append([]string{"gust"}, req.Variables...)
		assert.NotEqual(t, base, o.Fingerprint(moreVars, run))

		assert.NotEqual(t, base, o.Fingerprint(req, run.Add(12*time.Hour)))

		longer := req
		longer.ForecastHours = 24
		assert.NotEqual(t, base, o.Fingerprint(longer, run))
	})

	t.Run("nearby regions collapse to one key", func(t *testing.T) {
		near := req
		region, err := geo.NewRegion(20.01, 22.01, -140.02, -138.01)
		require.NoError(t, err)
		near.Region = region
		assert.Equal(t, o.Fingerprint(req, run), o.Fingerprint(near, run))
	})
}

func TestSliceAssemblesSeed(t *testing.T) {
	p := newCountingProvider()
	fake := clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC))
	o := newTestOrchestrator(t, p, fake)

	req := testRequest(t)
	s, err := o.Slice(context.Background(), req)
	require.NoError(t, err)

	wantRun := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	assert.True(t, wantRun.Equal(s.ModelRun))
	assert.Equal(t, "mock_hres", s.ModelSource)
	assert.Contains(t, s.ID, "mock_hres_2026082512_")
	assert.Equal(t, req.Region, s.Region)

	nt, nlat, nlon := s.Shape()
	assert.Equal(t, 5, nt, "0..12h at 3h step")
	assert.Equal(t, 9, nlat)
	assert.Equal(t, 9, nlon)
	assert.Len(t, s.Variables, 3)
	assert.Equal(t, 3, s.TimeStepHours)
	assert.True(t, s.ForecastStart.Equal(wantRun))
	assert.True(t, s.ForecastEnd.Equal(wantRun.Add(12*time.Hour)))
	assert.NotEmpty(t, s.Metadata["fingerprint"])
	assert.NoError(t, s.Check())
}

func TestSliceCacheHit(t *testing.T) {
	p := newCountingProvider()
	fake := clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC))
	o := newTestOrchestrator(t, p, fake)

	req := testRequest(t)
	first, err := o.Slice(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, p.fetchCount())

	second, err := o.Slice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, p.fetchCount(), "second slice served from cache")
	assert.Equal(t, first.ID, second.ID)

	// Variable order must not defeat the cache.
	shuffled := req
	shuffled.Variables = []string{"swh", "v10", "u10"}
	_, err = o.Slice(context.Background(), shuffled)
	require.NoError(t, err)
	assert.Equal(t, 1, p.fetchCount())
}

func TestSliceFallsBackExactlyOnce(t *testing.T) {
	latest := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	previous := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC))

	t.Run("fallback run succeeds", func(t *testing.T) {
		p := newCountingProvider()
		p.failRuns[latest] = true
		o := newTestOrchestrator(t, p, fake)

		s, err := o.Slice(context.Background(), testRequest(t))
		require.NoError(t, err)
		assert.True(t, previous.Equal(s.ModelRun))
		assert.Equal(t, 2, p.fetchCount())
	})

	t.Run("both runs fail", func(t *testing.T) {
		p := newCountingProvider()
		p.failRuns[latest] = true
		p.failRuns[previous] = true
		o := newTestOrchestrator(t, p, fake)

		_, err := o.Slice(context.Background(), testRequest(t))
		require.ErrorIs(t, err, ErrSliceUnavailable)
		assert.Equal(t, 2, p.fetchCount(), "no second fallback")
	})
}

func TestSliceValidationErrorSkipsFallback(t *testing.T) {
	p := &misshapenProvider{}
	fake := clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC))
	o := newTestOrchestrator(t, p, fake)

	// The fetch itself succeeds; the grid violates the shape contract.
	// That is a validation failure, not an archive gap, so retrying the
	// previous run cannot help.
	_, err := o.Slice(context.Background(), testRequest(t))
	require.ErrorIs(t, err, seed.ErrValidation)
	assert.NotErrorIs(t, err, ErrSliceUnavailable)
	assert.Equal(t, 1, p.fetches, "no fallback fetch")
}

func TestSlicePinnedRun(t *testing.T) {
	p := newCountingProvider()
	o := newTestOrchestrator(t, p, clockwork.NewFakeClock())

	req := testRequest(t)
	req.Run = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	s, err := o.Slice(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, req.Run.Equal(s.ModelRun))
}

func TestSliceBufferExpandsRegion(t *testing.T) {
	p := newCountingProvider()
	o := newTestOrchestrator(t, p, clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC)))

	req := testRequest(t)
	req.BufferDeg = 1.0

	s, err := o.Slice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 19.0, s.Region.LatMin)
	assert.Equal(t, 23.0, s.Region.LatMax)
	assert.Equal(t, -141.0, s.Region.LonMin)
	assert.Equal(t, -137.0, s.Region.LonMax)

	_, nlat, nlon := s.Shape()
	assert.Equal(t, 17, nlat)
	assert.Equal(t, 17, nlon)
}

func TestSliceCacheWriteFailureIsNotFatal(t *testing.T) {
	o, err := New(Options{
		Provider: newCountingProvider(),
		Cache:    failingCache{},
		Clock:    clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC)),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)

	s, err := o.Slice(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSliceRejectsBadRequests(t *testing.T) {
	o := newTestOrchestrator(t, newCountingProvider(), clockwork.NewFakeClock())

	req := testRequest(t)
	req.ForecastHours = 0
	_, err := o.Slice(context.Background(), req)
	assert.ErrorIs(t, err, ErrRequest)

	req = testRequest(t)
	req.TimeStepHours = -1
	_, err = o.Slice(context.Background(), req)
	assert.ErrorIs(t, err, ErrRequest)

	req = testRequest(t)
	req.Variables = nil
	_, err = o.Slice(context.Background(), req)
	assert.ErrorIs(t, err, ErrRequest)
}
