package geo

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

// ErrRegion indicates invalid geographic bounds. Non-retryable; the
// caller supplied coordinates that cannot form a region.
var ErrRegion = errors.New("invalid region")

const (
	// nmPerDegree is the approximate length of one degree of latitude
	// in nautical miles.
	nmPerDegree = 60.0

	// minCosLat clamps the longitude convergence factor near the poles
	// so that radius-to-degrees conversion never divides by ~zero.
	minCosLat = 0.01

	// DefaultCacheResolution is the grid spacing used to round bounds
	// before fingerprinting, so near-identical requests share a key.
	DefaultCacheResolution = 0.25
)

// Region is a rectangular geographic bounding area in WGS-84
// latitude/longitude degrees. Longitudes are signed degrees and are
// deliberately NOT wrapped or clamped to [-180, 180]: a region built
// around lon -175 with a wide radius keeps lon_min < -180. Routes that
// cross the ±180° seam therefore produce a naive near-global envelope
// (see FromRoute); this is a known limitation carried over from the
// reference behavior, pinned by tests, pending a deliberate move to a
// 0-360° representation with seam detection.
type Region struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Waypoint is a single (lat, lon) position along a route.
type Waypoint struct {
	Lat float64
	Lon float64
}

// NewRegion validates bounds and returns a Region.
// Latitude must satisfy -90 <= lat_min < lat_max <= 90. The longitude
// span must be non-zero; no other longitude constraint is enforced.
func NewRegion(latMin, latMax, lonMin, lonMax float64) (Region, error) {
	if !(-90 <= latMin && latMin < latMax && latMax <= 90) {
		return Region{}, fmt.Errorf("%w: latitude range %v to %v", ErrRegion, latMin, latMax)
	}
	if lonMin == lonMax {
		return Region{}, fmt.Errorf("%w: longitude span is zero at %v", ErrRegion, lonMin)
	}
	return Region{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}, nil
}

// FromCenter builds the region covering a circle of radiusNM nautical
// miles around (lat, lon). The latitude delta is radius/60; the
// longitude delta grows by 1/cos(lat) toward the poles. Latitude is
// clamped to [-90, 90]; longitude is left unclamped and unwrapped.
func FromCenter(lat, lon, radiusNM float64) (Region, error) {
	if radiusNM <= 0 {
		return Region{}, fmt.Errorf("%w: radius %v nm", ErrRegion, radiusNM)
	}

	latDeg := radiusNM / nmPerDegree
	cosLat := math.Max(math.Cos(lat*math.Pi/180), minCosLat)
	lonDeg := radiusNM / (nmPerDegree * cosLat)

	return NewRegion(
		math.Max(-90, lat-latDeg),
		math.Min(90, lat+latDeg),
		lon-lonDeg,
		lon+lonDeg,
	)
}

// FromRoute builds the bounding envelope of a set of waypoints plus a
// buffer in nautical miles, computed like FromCenter at the route's
// mean latitude. This is a plain min/max envelope: a route crossing
// the ±180° seam by a small margin yields a near-global box rather
// than the shorter wrap-around region.
func FromRoute(waypoints []Waypoint, bufferNM float64) (Region, error) {
	if len(waypoints) == 0 {
		return Region{}, fmt.Errorf("%w: route has no waypoints", ErrRegion)
	}

	latMin, latMax := waypoints[0].Lat, waypoints[0].Lat
	lonMin, lonMax := waypoints[0].Lon, waypoints[0].Lon
	for _, wp := range waypoints[1:] {
		latMin = math.Min(latMin, wp.Lat)
		latMax = math.Max(latMax, wp.Lat)
		lonMin = math.Min(lonMin, wp.Lon)
		lonMax = math.Max(lonMax, wp.Lon)
	}

	centerLat := (latMax + latMin) / 2
	cosLat := math.Max(math.Cos(centerLat*math.Pi/180), minCosLat)
	latBuf := bufferNM / nmPerDegree
	lonBuf := bufferNM / (nmPerDegree * cosLat)

	return NewRegion(
		math.Max(-90, latMin-latBuf),
		math.Min(90, latMax+latBuf),
		lonMin-lonBuf,
		lonMax+lonBuf,
	)
}

// AreaSqNM returns the approximate area in square nautical miles,
// scaling the longitude span by cos of the mean latitude.
func (r Region) AreaSqNM() float64 {
	latSpan := (r.LatMax - r.LatMin) * nmPerDegree
	centerLat := (r.LatMax + r.LatMin) / 2
	lonSpan := (r.LonMax - r.LonMin) * nmPerDegree * math.Cos(centerLat*math.Pi/180)
	return latSpan * lonSpan
}

// CacheKey returns the region fingerprint at the default quarter-degree
// resolution.
func (r Region) CacheKey() string {
	return r.CacheKeyAt(DefaultCacheResolution)
}

// CacheKeyAt rounds all four bounds to the nearest multiple of
// resolution degrees and hashes the result, so requests whose bounds
// differ by less than half a grid cell collapse to one cache entry.
func (r Region) CacheKeyAt(resolution float64) string {
	snap := func(v float64) float64 { return math.Round(v/resolution) * resolution }
	s := fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
		snap(r.LatMin), snap(r.LatMax), snap(r.LonMin), snap(r.LonMax))
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

// ProviderArea returns the bounds in the North/West/South/East
// ordering used by gridded-data provider requests.
func (r Region) ProviderArea() [4]float64 {
	return [4]float64{r.LatMax, r.LonMin, r.LatMin, r.LonMax}
}

// Buffer expands the region by deg degrees on every side. Latitude is
// clamped to [-90, 90]; longitude expands naively, without wrap.
func (r Region) Buffer(deg float64) Region {
	if deg <= 0 {
		return r
	}
	return Region{
		LatMin: math.Max(-90, r.LatMin-deg),
		LatMax: math.Min(90, r.LatMax+deg),
		LonMin: r.LonMin - deg,
		LonMax: r.LonMax + deg,
	}
}

func (r Region) String() string {
	return fmt.Sprintf("[%.2f°,%.2f°]×[%.2f°,%.2f°]", r.LatMin, r.LatMax, r.LonMin, r.LonMax)
}
