// Package seed models the compressed regional weather artifact.
//
// A Seed is a geographically cropped, variable-pruned extract of one
// upstream model run: per-variable 3-D grids indexed [time, lat, lon],
// the coordinate vectors they are aligned to, and enough provenance to
// reproduce the request that built it. Seeds are mutable only during
// assembly; consumers only ever observe fully assembled, shape-checked
// values.
package seed

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/marinerlabs/gridseed/internal/geo"
)

// ErrValidation indicates a Seed whose contents violate the shape
// invariants: surfaced immediately, never silently repaired.
var ErrValidation = errors.New("seed validation")

// Grid is a dense 3-D float32 field stored row-major as
// [time][lat][lon].
type Grid struct {
	Times  int       `json:"times"`
	Lats   int       `json:"lats"`
	Lons   int       `json:"lons"`
	Values []float32 `json:"-"`
}

// NewGrid allocates a zero-filled grid with the given dimensions.
func NewGrid(times, lats, lons int) Grid {
	return Grid{Times: times, Lats: lats, Lons: lons, Values: make([]float32, times*lats*lons)}
}

// At returns the value at (time, lat, lon) indices.
func (g Grid) At(t, i, j int) float32 {
	return g.Values[(t*g.Lats+i)*g.Lons+j]
}

// Set writes the value at (time, lat, lon) indices.
func (g *Grid) Set(t, i, j int, v float32) {
	g.Values[(t*g.Lats+i)*g.Lons+j] = v
}

// Len returns the number of stored values.
func (g Grid) Len() int { return len(g.Values) }

// Shape reports the grid dimensions as (time, lat, lon).
func (g Grid) Shape() (int, int, int) { return g.Times, g.Lats, g.Lons }

// Seed is one complete regional weather extract.
type Seed struct {
	// Identity.
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ModelSource string    `json:"model_source"`
	ModelRun    time.Time `json:"model_run"`

	// Spatial extent.
	Region        geo.Region `json:"region"`
	ResolutionDeg float64    `json:"resolution_deg"`

	// Temporal extent.
	ForecastStart time.Time   `json:"forecast_start"`
	ForecastEnd   time.Time   `json:"forecast_end"`
	TimeStepHours int         `json:"time_step_hours"`
	Times         []time.Time `json:"times"`

	// Data, keyed by catalog variable key.
	Variables  map[string]Grid `json:"-"`
	Latitudes  []float64       `json:"latitudes"`
	Longitudes []float64       `json:"longitudes"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Shape returns the expected per-variable dimensions:
// (len(times), len(latitudes), len(longitudes)).
func (s *Seed) Shape() (int, int, int) {
	return len(s.Times), len(s.Latitudes), len(s.Longitudes)
}

// GridPoints returns the number of spatial grid cells.
func (s *Seed) GridPoints() int {
	return len(s.Latitudes) * len(s.Longitudes)
}

// SizeBytesUncompressed returns the raw in-memory footprint of the
// variable and coordinate arrays.
func (s *Seed) SizeBytesUncompressed() int {
	total := 0
	for _, g := range s.Variables {
		total += g.Len() * 4
	}
	total += (len(s.Latitudes) + len(s.Longitudes)) * 8
	return total
}

// EstimatedCompressedMB predicts the exported size using the empirical
// ~4x compression factor observed on quantized weather fields.
func (s *Seed) EstimatedCompressedMB() float64 {
	return float64(s.SizeBytesUncompressed()) * 0.25 / (1024 * 1024)
}

// Validate checks the shape invariants and data presence, returning a
// list of human-readable issues. An empty list means the Seed is
// internally consistent. A Seed with issues is flagged, not rejected:
// construction and validation are separate steps.
func (s *Seed) Validate() []string {
	var issues []string

	if len(s.Variables) == 0 {
		issues = append(issues, "no variables present")
	}

	wantT, wantLat, wantLon := s.Shape()
	for name, g := range s.Variables {
		if g.Times != wantT || g.Lats != wantLat || g.Lons != wantLon {
			issues = append(issues, fmt.Sprintf(
				"variable %s shape (%d,%d,%d) != expected (%d,%d,%d)",
				name, g.Times, g.Lats, g.Lons, wantT, wantLat, wantLon))
			continue
		}
		if g.Len() != wantT*wantLat*wantLon {
			issues = append(issues, fmt.Sprintf(
				"variable %s has %d values, expected %d", name, g.Len(), wantT*wantLat*wantLon))
			continue
		}
		if allNaN(g.Values) {
			issues = append(issues, fmt.Sprintf("variable %s is entirely NaN", name))
		}
	}

	return issues
}

// Check wraps Validate into a single error for callers that need a
// pass/fail decision, e.g. before publishing or caching.
func (s *Seed) Check() error {
	issues := s.Validate()
	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(issues, "; "))
}

func allNaN(values []float32) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if !math.IsNaN(float64(v)) {
			return false
		}
	}
	return true
}
