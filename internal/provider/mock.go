package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/seed"
)

// DefaultSeed is the RNG seed used for mock fields when none is
// configured. Fixed so every environment generates identical data.
const DefaultSeed = 42

// Mock synthesizes physically plausible forecast fields without any
// network access: smooth variation in space and time, values clipped
// to each variable's valid range. Output is fully determined by the
// configured seed and the request, so test fixtures and offline demos
// are reproducible.
type Mock struct {
	seed int64
}

// NewMock returns a mock provider. Pass DefaultSeed unless a test
// needs distinguishable datasets.
func NewMock(seedValue int64) *Mock {
	return &Mock{seed: seedValue}
}

func (m *Mock) Name() string { return "mock_hres" }

func (m *Mock) Fetch(_ context.Context, req Request) (Result, error) {
	if req.ResolutionDeg <= 0 {
		return Result{}, fmt.Errorf("%w: resolution %v not positive", ErrProvider, req.ResolutionDeg)
	}
	if len(req.LeadHours) == 0 {
		return Result{}, fmt.Errorf("%w: no lead hours requested", ErrProvider)
	}

	lats := arange(req.Region.LatMin, req.Region.LatMax, req.ResolutionDeg)
	lons := arange(req.Region.LonMin, req.Region.LonMax, req.ResolutionDeg)

	result := Result{
		Latitudes:  lats,
		Longitudes: lons,
		Variables:  make(map[string]seed.Grid, len(req.Variables)),
	}

	runHour := float64(req.Run.Unix()) / 3600
	for _, name := range req.Variables {
		variable, ok := catalog.Lookup(name)
		if !ok {
			return Result{}, fmt.Errorf("%w: unknown variable %q", ErrProvider, name)
		}
		result.Variables[name] = m.synthesize(variable, runHour, req.LeadHours, lats, lons)
	}

	return result, nil
}

// synthesize builds one variable's grid: a mean state plus slow
// sinusoidal structure in latitude, longitude and forecast time. The
// per-variable RNG only draws phases and frequencies, never per-point
// noise, so fields stay smooth and compress like real model output.
func (m *Mock) synthesize(variable catalog.Variable, runHour float64, leadHours []int, lats, lons []float64) seed.Grid {
	rng := rand.New(rand.NewSource(m.seed ^ nameSeed(variable.Key)))

	mid := (variable.Min + variable.Max) / 2
	amp := (variable.Max - variable.Min) / 6

	latFreq := 0.5 + rng.Float64()*1.5 // cycles across the region
	lonFreq := 0.5 + rng.Float64()*1.5
	timeFreq := 2 * math.Pi / (24 + rng.Float64()*48) // 1-3 day period
	latPhase := rng.Float64() * 2 * math.Pi
	lonPhase := rng.Float64() * 2 * math.Pi
	timePhase := rng.Float64() * 2 * math.Pi

	latSpan := math.Max(lats[len(lats)-1]-lats[0], 1e-9)
	lonSpan := math.Max(lons[len(lons)-1]-lons[0], 1e-9)

	g := seed.NewGrid(len(leadHours), len(lats), len(lons))
	for ti, lead := range leadHours {
		hour := runHour + float64(lead)
		timeTerm := math.Sin(hour*timeFreq + timePhase)
		for i, lat := range lats {
			latTerm := math.Sin((lat-lats[0])/latSpan*2*math.Pi*latFreq + latPhase)
			for j, lon := range lons {
				lonTerm := math.Cos((lon-lons[0])/lonSpan*2*math.Pi*lonFreq + lonPhase)
				v := mid + amp*(latTerm+0.6*lonTerm+0.4*timeTerm)
				g.Set(ti, i, j, float32(math.Min(math.Max(v, variable.Min), variable.Max)))
			}
		}
	}
	return g
}

// arange returns min..max inclusive at the given step, matching the
// grid registration used by the upstream model archives.
func arange(min, max, step float64) []float64 {
	var out []float64
	for v := min; v <= max+1e-9; v += step {
		out = append(out, v)
	}
	return out
}

func nameSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
