// Package ingest runs the scheduled slicing job: every pass it
// assembles one seed per configured region, exports both transfer
// formats to the output directory, and announces the results.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marinerlabs/gridseed/internal/codec"
	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/observability"
	"github.com/marinerlabs/gridseed/internal/seed"
	"github.com/marinerlabs/gridseed/internal/slicer"
)

// Announcement is published after each successful export so
// downstream delivery services know a fresh seed exists.
type Announcement struct {
	SeedID      string             `json:"seed_id"`
	Fingerprint string             `json:"fingerprint"`
	ModelSource string             `json:"model_source"`
	ModelRun    time.Time          `json:"model_run"`
	Format      string             `json:"format"`
	OutputBytes int                `json:"output_bytes"`
	Ratio       float64            `json:"ratio"`
	Costs       map[string]float64 `json:"costs"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Announcer publishes export announcements. Nil disables publishing.
type Announcer interface {
	Announce(ctx context.Context, anns []Announcement) error
}

// Status is a point-in-time snapshot of the job for the status
// endpoint.
type Status struct {
	LastPass   time.Time `json:"last_pass"`
	SeedsBuilt int       `json:"seeds_built"`
	LastError  string    `json:"last_error,omitempty"`
}

// Options configures a Job.
type Options struct {
	Orchestrator  *slicer.Orchestrator
	Announcer     Announcer
	OutputDir     string
	Level         codec.Level
	Regions       []geo.Region
	ForecastHours int
	TimeStepHours int
	BufferDeg     float64
	Variables     []string
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Job slices and exports the configured regions. One pass is one
// RunOnce call; scheduling is the caller's concern.
type Job struct {
	orchestrator  *slicer.Orchestrator
	announcer     Announcer
	outputDir     string
	level         codec.Level
	regions       []geo.Region
	forecastHours int
	timeStepHours int
	bufferDeg     float64
	variables     []string
	logger        *slog.Logger
	metrics       *observability.Metrics

	ready atomic.Bool

	mu     sync.Mutex
	status Status
}

func New(opts Options) (*Job, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("ingest: orchestrator is required")
	}
	if len(opts.Regions) == 0 {
		return nil, errors.New("ingest: at least one region is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	j := &Job{
		orchestrator:  opts.Orchestrator,
		announcer:     opts.Announcer,
		outputDir:     opts.OutputDir,
		level:         opts.Level,
		regions:       opts.Regions,
		forecastHours: opts.ForecastHours,
		timeStepHours: opts.TimeStepHours,
		bufferDeg:     opts.BufferDeg,
		variables:     opts.Variables,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	if j.metrics == nil {
		j.metrics = observability.NewMetricsForTesting()
	}
	return j, nil
}

// CheckReadiness returns nil once the job has exported at least one
// seed, or an error describing why the service is not yet ready.
func (j *Job) CheckReadiness(_ context.Context) error {
	if !j.ready.Load() {
		return errors.New("no seed exported yet")
	}
	return nil
}

// Status returns a snapshot of the last pass.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// RunOnce slices every configured region. Per-region failures do not
// abort the pass; the joined error reports all of them.
func (j *Job) RunOnce(ctx context.Context) error {
	var errs []error
	built := 0
	for _, region := range j.regions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := j.sliceRegion(ctx, region); err != nil {
			j.logger.Error("region slice failed", "region", region.String(), "error", err)
			errs = append(errs, fmt.Errorf("region %s: %w", region, err))
			continue
		}
		built++
	}

	err := errors.Join(errs...)

	j.mu.Lock()
	j.status.LastPass = time.Now().UTC()
	j.status.SeedsBuilt += built
	if err != nil {
		j.status.LastError = err.Error()
	} else {
		j.status.LastError = ""
	}
	j.mu.Unlock()

	if built > 0 {
		j.ready.Store(true)
	}
	return err
}

func (j *Job) sliceRegion(ctx context.Context, region geo.Region) error {
	s, err := j.orchestrator.Slice(ctx, slicer.Request{
		Region:        region,
		ForecastHours: j.forecastHours,
		TimeStepHours: j.timeStepHours,
		Variables:     j.variables,
		BufferDeg:     j.bufferDeg,
	})
	if err != nil {
		return err
	}

	anns := make([]Announcement, 0, 2)
	for _, export := range []struct {
		format string
		ext    string
		encode func(*seed.Seed, codec.Options) ([]byte, error)
	}{
		{codec.FormatBinary, ".seed", codec.Encode},
		{codec.FormatColumnar, ".tbl", codec.EncodeTable},
	} {
		payload, err := export.encode(s, codec.Options{Level: j.level})
		if err != nil {
			return fmt.Errorf("encode %s: %w", export.format, err)
		}
		path := filepath.Join(j.outputDir, s.ID+export.ext)
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		stats := codec.Stats(s, export.format, payload)
		j.metrics.ExportBytes.WithLabelValues(export.format).Observe(float64(stats.OutputBytes))
		j.metrics.ExportRatio.WithLabelValues(export.format).Observe(stats.Ratio)
		j.logger.Info("seed exported",
			"seed_id", s.ID, "format", export.format, "path", path,
			"bytes", stats.OutputBytes, "ratio", fmt.Sprintf("%.1f", stats.Ratio))

		anns = append(anns, Announcement{
			SeedID:      s.ID,
			Fingerprint: s.Metadata["fingerprint"],
			ModelSource: s.ModelSource,
			ModelRun:    s.ModelRun,
			Format:      export.format,
			OutputBytes: stats.OutputBytes,
			Ratio:       stats.Ratio,
			Costs:       stats.CostEstimates,
			CreatedAt:   s.CreatedAt,
		})
	}

	if j.announcer != nil {
		if err := j.announcer.Announce(ctx, anns); err != nil {
			return fmt.Errorf("announce: %w", err)
		}
	}
	return nil
}
