// Package provider abstracts upstream gridded weather sources. The
// orchestrator only sees the GriddedProvider interface; concrete
// implementations fetch from a model archive or, for development and
// tests, synthesize fields locally.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/seed"
)

// ErrProvider indicates an upstream fetch failure. The orchestrator
// treats it as retryable against an older model run.
var ErrProvider = errors.New("provider fetch")

// Request asks for a cropped subset of one model run.
type Request struct {
	Region        geo.Region
	Run           time.Time
	LeadHours     []int
	Variables     []string
	ResolutionDeg float64
}

// Result carries the fetched grids and the coordinate vectors they
// are aligned to. Every grid has shape
// (len(request.LeadHours), len(Latitudes), len(Longitudes)).
type Result struct {
	Latitudes  []float64
	Longitudes []float64
	Variables  map[string]seed.Grid
}

// GriddedProvider fetches gridded forecast data for one model run.
// Implementations must be safe for concurrent use.
type GriddedProvider interface {
	// Name identifies the provider in logs and seed provenance.
	Name() string

	// Fetch retrieves the requested subset. A run that is not (yet or
	// anymore) available returns an error wrapping ErrProvider.
	Fetch(ctx context.Context, req Request) (Result, error)
}
