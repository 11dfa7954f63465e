// Package slicer orchestrates seed assembly: resolve the model run,
// consult the cache, fetch from the upstream provider with a single
// fallback to the previous run, crop and assemble the seed, and write
// it back to the cache.
package slicer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/observability"
	"github.com/marinerlabs/gridseed/internal/provider"
	"github.com/marinerlabs/gridseed/internal/seed"
)

var (
	// ErrRequest indicates a slice request that can never succeed:
	// bad horizon, bad step, or an empty variable list.
	ErrRequest = errors.New("invalid slice request")

	// ErrSliceUnavailable indicates that both the requested run and
	// the fallback run failed to fetch.
	ErrSliceUnavailable = errors.New("slice unavailable")
)

// RunSchedule describes when model runs become available. Runs start
// at fixed UTC hours anchored to midnight (cadence 12 gives 00Z and
// 12Z) and are published LatencyHours after their nominal time.
type RunSchedule struct {
	CadenceHours int
	LatencyHours int
}

// DefaultSchedule matches the twice-daily HRES cycle with its usual
// ~6 hour publication delay.
func DefaultSchedule() RunSchedule {
	return RunSchedule{CadenceHours: 12, LatencyHours: 6}
}

// LatestRun returns the most recent run already published at now.
func (rs RunSchedule) LatestRun(now time.Time) time.Time {
	t := now.UTC().Add(-time.Duration(rs.LatencyHours) * time.Hour)
	runHour := (t.Hour() / rs.CadenceHours) * rs.CadenceHours
	return time.Date(t.Year(), t.Month(), t.Day(), runHour, 0, 0, 0, time.UTC)
}

// PreviousRun returns the run one cycle before run.
func (rs RunSchedule) PreviousRun(run time.Time) time.Time {
	return run.Add(-time.Duration(rs.CadenceHours) * time.Hour)
}

// SeedCache is the slice of the cache store the orchestrator needs.
type SeedCache interface {
	Load(key string) (*seed.Seed, error)
	Save(key string, s *seed.Seed) error
}

// Request describes one seed to assemble.
type Request struct {
	Region        geo.Region
	ForecastHours int
	TimeStepHours int
	Variables     []string

	// BufferDeg expands the region on all sides before fetching, so a
	// vessel drifting off its planned route stays inside the grid.
	BufferDeg float64

	// Run pins a specific model run. Zero means latest available.
	Run time.Time
}

// Options configures an Orchestrator. Provider and Cache are
// required; nil Clock, Logger and Metrics get working defaults.
type Options struct {
	Provider      provider.GriddedProvider
	Cache         SeedCache
	Clock         clockwork.Clock
	Schedule      RunSchedule
	ResolutionDeg float64
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Orchestrator builds seeds. Safe for concurrent use: concurrent
// requests for the same fingerprint race benignly on the cache.
type Orchestrator struct {
	provider   provider.GriddedProvider
	cache      SeedCache
	clock      clockwork.Clock
	schedule   RunSchedule
	resolution float64
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, errors.New("slicer: provider is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("slicer: cache is required")
	}
	o := &Orchestrator{
		provider:   opts.Provider,
		cache:      opts.Cache,
		clock:      opts.Clock,
		schedule:   opts.Schedule,
		resolution: opts.ResolutionDeg,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.schedule.CadenceHours <= 0 {
		o.schedule = DefaultSchedule()
	}
	if o.resolution <= 0 {
		o.resolution = 0.25
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetricsForTesting()
	}
	return o, nil
}

// Fingerprint derives the cache key for a request against a specific
// run. Nearby regions collapse via the quarter-degree region key;
// variable order never matters.
func (o *Orchestrator) Fingerprint(req Request, run time.Time) string {
	vars := append([]string(nil), req.Variables...)
	sort.Strings(vars)
	varHash := sha256.Sum256([]byte(strings.Join(vars, ",")))

	region := req.Region
	if req.BufferDeg > 0 {
		region = region.Buffer(req.BufferDeg)
	}
	return fmt.Sprintf("%s_%s_f%03d_s%d_%s",
		region.CacheKey(),
		run.UTC().Format("2006010215"),
		req.ForecastHours,
		req.TimeStepHours,
		hex.EncodeToString(varHash[:])[:8])
}

// Slice assembles one seed: cache check, fetch, one fallback to the
// previous run, assemble, cache write. Cache write failures are
// logged and counted but never fail the slice.
func (o *Orchestrator) Slice(ctx context.Context, req Request) (*seed.Seed, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	start := o.clock.Now()

	run := req.Run
	if run.IsZero() {
		run = o.schedule.LatestRun(o.clock.Now())
	}

	s, err := o.sliceRun(ctx, req, run)
	if err != nil {
		// Only a failed fetch earns a retry against the previous run;
		// assemble and validation errors surface immediately.
		if !errors.Is(err, provider.ErrProvider) {
			o.metrics.SliceErrors.Inc()
			return nil, err
		}
		o.metrics.FetchFailures.Inc()
		o.metrics.FetchFallbacks.Inc()
		fallback := o.schedule.PreviousRun(run)
		o.logger.Warn("fetch failed, falling back to previous run",
			"run", run.Format(time.RFC3339), "fallback", fallback.Format(time.RFC3339), "error", err)

		s, err = o.sliceRun(ctx, req, fallback)
		if err != nil {
			o.metrics.SliceErrors.Inc()
			if !errors.Is(err, provider.ErrProvider) {
				return nil, err
			}
			o.metrics.FetchFailures.Inc()
			return nil, fmt.Errorf("%w: run %s and fallback %s both failed: %v",
				ErrSliceUnavailable, run.Format(time.RFC3339), fallback.Format(time.RFC3339), err)
		}
	}

	o.metrics.SliceDuration.Observe(o.clock.Since(start).Seconds())
	return s, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.ForecastHours <= 0 {
		return fmt.Errorf("%w: forecast hours %d", ErrRequest, req.ForecastHours)
	}
	if req.TimeStepHours <= 0 {
		return fmt.Errorf("%w: time step %d", ErrRequest, req.TimeStepHours)
	}
	if len(req.Variables) == 0 {
		return fmt.Errorf("%w: no variables", ErrRequest)
	}
	return nil
}

// sliceRun attempts one run: cache first, then fetch and assemble.
func (o *Orchestrator) sliceRun(ctx context.Context, req Request, run time.Time) (*seed.Seed, error) {
	key := o.Fingerprint(req, run)

	if cached, err := o.cache.Load(key); err == nil && cached != nil {
		o.metrics.CacheHits.Inc()
		o.logger.Info("cache hit", "fingerprint", key, "seed_id", cached.ID)
		return cached, nil
	}
	o.metrics.CacheMisses.Inc()

	region := req.Region
	if req.BufferDeg > 0 {
		region = region.Buffer(req.BufferDeg)
	}

	var leadHours []int
	for h := 0; h <= req.ForecastHours; h += req.TimeStepHours {
		leadHours = append(leadHours, h)
	}

	result, err := o.provider.Fetch(ctx, provider.Request{
		Region:        region,
		Run:           run,
		LeadHours:     leadHours,
		Variables:     req.Variables,
		ResolutionDeg: o.resolution,
	})
	if err != nil {
		return nil, err
	}

	s, err := o.assemble(region, run, leadHours, result, key)
	if err != nil {
		return nil, err
	}

	if err := o.cache.Save(key, s); err != nil {
		o.metrics.CacheWriteErrors.Inc()
		o.logger.Warn("cache write failed", "fingerprint", key, "error", err)
	}

	o.metrics.SlicesBuilt.Inc()
	o.logger.Info("seed assembled",
		"seed_id", s.ID, "fingerprint", key, "run", run.Format(time.RFC3339),
		"variables", len(s.Variables), "grid_points", s.GridPoints(), "time_steps", len(s.Times))
	return s, nil
}

// assemble crops the provider result to the requested region and
// builds a validated seed.
func (o *Orchestrator) assemble(region geo.Region, run time.Time, leadHours []int, result provider.Result, fingerprint string) (*seed.Seed, error) {
	latIdx := cropIndices(result.Latitudes, region.LatMin, region.LatMax)
	lonIdx := cropIndices(result.Longitudes, region.LonMin, region.LonMax)
	if len(latIdx) == 0 || len(lonIdx) == 0 {
		return nil, fmt.Errorf("%w: provider grid does not cover %s", seed.ErrValidation, region)
	}

	idHash := sha256.Sum256([]byte(fingerprint))
	stepHours := 0
	if len(leadHours) > 1 {
		stepHours = leadHours[1] - leadHours[0]
	}

	s := &seed.Seed{
		ID:            fmt.Sprintf("%s_%s_%s", o.provider.Name(), run.UTC().Format("2006010215"), hex.EncodeToString(idHash[:])[:6]),
		CreatedAt:     o.clock.Now().UTC(),
		ModelSource:   o.provider.Name(),
		ModelRun:      run.UTC(),
		Region:        region,
		ResolutionDeg: o.resolution,
		ForecastStart: run.UTC().Add(time.Duration(leadHours[0]) * time.Hour),
		ForecastEnd:   run.UTC().Add(time.Duration(leadHours[len(leadHours)-1]) * time.Hour),
		TimeStepHours: stepHours,
		Latitudes:     selectCoords(result.Latitudes, latIdx),
		Longitudes:    selectCoords(result.Longitudes, lonIdx),
		Variables:     make(map[string]seed.Grid, len(result.Variables)),
		Metadata:      map[string]string{"fingerprint": fingerprint},
	}
	for _, h := range leadHours {
		s.Times = append(s.Times, s.ModelRun.Add(time.Duration(h)*time.Hour))
	}

	for name, g := range result.Variables {
		if g.Times != len(leadHours) || g.Lats != len(result.Latitudes) || g.Lons != len(result.Longitudes) {
			return nil, fmt.Errorf("%w: provider returned %s with shape (%d,%d,%d)",
				seed.ErrValidation, name, g.Times, g.Lats, g.Lons)
		}
		cropped := seed.NewGrid(len(leadHours), len(latIdx), len(lonIdx))
		for t := range leadHours {
			for i, li := range latIdx {
				for j, lj := range lonIdx {
					cropped.Set(t, i, j, g.At(t, li, lj))
				}
			}
		}
		s.Variables[name] = cropped
	}

	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// cropIndices returns the indices of coords inside [min, max], with a
// small epsilon for float accumulation in the coordinate vectors.
func cropIndices(coords []float64, min, max float64) []int {
	const eps = 1e-6
	var idx []int
	for i, c := range coords {
		if c >= min-eps && c <= max+eps {
			idx = append(idx, i)
		}
	}
	return idx
}

func selectCoords(coords []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = coords[j]
	}
	return out
}
