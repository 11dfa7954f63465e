// Package catalog is the static registry of marine weather variables.
//
// Upstream model output carries 100+ parameters; offshore passage
// planning needs roughly fifteen. Each entry records the provider
// identifiers needed to request the parameter, its physical bounds for
// validation, and the quantization rule that sets its transmitted
// precision. Pruning to one of the named sets below is the first and
// largest size reduction the engine applies (~90% before any
// compression).
//
// The registry is built once as a map literal and never mutated;
// lookups return a typed result with an explicit fallback rule for
// unknown keys.
package catalog

import (
	"fmt"
	"math"
	"sort"
)

// Category groups variables by the kind of guidance they give a crew.
type Category string

const (
	Wind          Category = "wind"
	Pressure      Category = "pressure"
	Waves         Category = "waves"
	Precipitation Category = "precipitation"
	Visibility    Category = "visibility"
	Temperature   Category = "temperature"
	Humidity      Category = "humidity"
)

// Rule sets the lossy precision contract for one variable: values are
// snapped to Step before integer encoding into Bits-wide integers.
// Offset biases the packed range for variables that never approach
// zero (e.g. temperatures in kelvin).
type Rule struct {
	Step   float64
	Bits   int
	Offset float64
}

// DefaultRule is applied to variables without a tuned rule: 0.1 steps
// in 16-bit containers is a safe medium precision.
var DefaultRule = Rule{Step: 0.1, Bits: 16}

// Variable is one immutable catalog entry.
type Variable struct {
	Key       string // registry key and CF-style array name
	ShortName string // provider GRIB short name
	ParamID   int    // provider parameter id for requests
	Name      string
	Unit      string
	Category  Category
	LevelType string
	Level     int // meters or hPa depending on LevelType; 0 when not applicable

	// PrecisionDigits drives the secondary ClipRound pass: decimals
	// preserved before columnar export.
	PrecisionDigits int

	// Physical validity bounds; values outside are clipped.
	Min, Max float64

	Rule Rule
}

var variables = map[string]Variable{
	"u10": {
		Key: "u10", ShortName: "10u", ParamID: 165,
		Name: "10m eastward wind component", Unit: "m s-1",
		Category: Wind, LevelType: "heightAboveGround", Level: 10,
		PrecisionDigits: 2, Min: -50, Max: 50,
		Rule: Rule{Step: 0.25, Bits: 16}, // 0.5 knot operational precision
	},
	"v10": {
		Key: "v10", ShortName: "10v", ParamID: 166,
		Name: "10m northward wind component", Unit: "m s-1",
		Category: Wind, LevelType: "heightAboveGround", Level: 10,
		PrecisionDigits: 2, Min: -50, Max: 50,
		Rule: Rule{Step: 0.25, Bits: 16},
	},
	"gust": {
		Key: "gust", ShortName: "gust", ParamID: 49,
		Name: "10m wind gust since previous post-processing", Unit: "m s-1",
		Category: Wind, LevelType: "heightAboveGround", Level: 10,
		PrecisionDigits: 2, Min: 0, Max: 100,
		Rule: Rule{Step: 0.5, Bits: 16}, // gusts are inherently noisy
	},
	"msl": {
		Key: "msl", ShortName: "msl", ParamID: 151,
		Name: "mean sea level pressure", Unit: "Pa",
		Category: Pressure, LevelType: "meanSea",
		PrecisionDigits: 0, Min: 87000, Max: 108000,
		Rule: Rule{Step: 10, Bits: 16}, // 0.1 hPa barometer precision
	},
	"swh": {
		Key: "swh", ShortName: "swh", ParamID: 229,
		Name: "significant height of combined wind waves and swell", Unit: "m",
		Category: Waves, LevelType: "surface",
		PrecisionDigits: 2, Min: 0, Max: 25,
		Rule: Rule{Step: 0.1, Bits: 8},
	},
	"mwp": {
		Key: "mwp", ShortName: "mwp", ParamID: 232,
		Name: "mean wave period", Unit: "s",
		Category: Waves, LevelType: "surface",
		PrecisionDigits: 1, Min: 0, Max: 25,
		Rule: Rule{Step: 0.5, Bits: 8},
	},
	"mwd": {
		Key: "mwd", ShortName: "mwd", ParamID: 230,
		Name: "mean wave direction", Unit: "degrees",
		Category: Waves, LevelType: "surface",
		PrecisionDigits: 0, Min: 0, Max: 360,
		Rule: Rule{Step: 5, Bits: 8}, // wind vanes aren't accurate to 1°
	},
	"tp": {
		Key: "tp", ShortName: "tp", ParamID: 228,
		Name: "total precipitation", Unit: "m",
		Category: Precipitation, LevelType: "surface",
		PrecisionDigits: 4, Min: 0, Max: 0.5,
		Rule: Rule{Step: 0.0001, Bits: 16},
	},
	"vis": {
		Key: "vis", ShortName: "vis", ParamID: 20,
		Name: "visibility", Unit: "m",
		Category: Visibility, LevelType: "surface",
		PrecisionDigits: 0, Min: 0, Max: 100000,
		Rule: DefaultRule,
	},
	"t2m": {
		Key: "t2m", ShortName: "2t", ParamID: 167,
		Name: "2m temperature", Unit: "K",
		Category: Temperature, LevelType: "heightAboveGround", Level: 2,
		PrecisionDigits: 1, Min: 200, Max: 330,
		Rule: Rule{Step: 0.5, Bits: 16, Offset: 200},
	},
	"d2m": {
		Key: "d2m", ShortName: "2d", ParamID: 168,
		Name: "2m dewpoint temperature", Unit: "K",
		Category: Temperature, LevelType: "heightAboveGround", Level: 2,
		PrecisionDigits: 1, Min: 200, Max: 320,
		Rule: DefaultRule,
	},
	"sst": {
		Key: "sst", ShortName: "sst", ParamID: 34,
		Name: "sea surface temperature", Unit: "K",
		Category: Temperature, LevelType: "surface",
		PrecisionDigits: 2, Min: 270, Max: 310,
		Rule: Rule{Step: 0.1, Bits: 16, Offset: 270},
	},
	"tcc": {
		Key: "tcc", ShortName: "tcc", ParamID: 164,
		Name: "total cloud cover", Unit: "(0-1)",
		Category: Visibility, LevelType: "surface",
		PrecisionDigits: 2, Min: 0, Max: 1,
		Rule: DefaultRule,
	},

	// Upper-air parameters for onboard AI model initialization.
	"z": {
		Key: "z", ShortName: "z", ParamID: 129,
		Name: "geopotential", Unit: "m^2 s^-2",
		Category: Pressure, LevelType: "isobaricInhPa",
		PrecisionDigits: 0, Min: -1000, Max: 100000,
		Rule: Rule{Step: 10, Bits: 16},
	},
	"q": {
		Key: "q", ShortName: "q", ParamID: 133,
		Name: "specific humidity", Unit: "kg kg^-1",
		Category: Humidity, LevelType: "isobaricInhPa",
		PrecisionDigits: 5, Min: 0, Max: 0.03,
		Rule: Rule{Step: 0.00001, Bits: 16},
	},
	"t": {
		Key: "t", ShortName: "t", ParamID: 130,
		Name: "temperature", Unit: "K",
		Category: Temperature, LevelType: "isobaricInhPa",
		PrecisionDigits: 1, Min: 180, Max: 330,
		Rule: Rule{Step: 0.5, Bits: 16},
	},
	"u": {
		Key: "u", ShortName: "u", ParamID: 131,
		Name: "u component of wind", Unit: "m s-1",
		Category: Wind, LevelType: "isobaricInhPa",
		PrecisionDigits: 1, Min: -100, Max: 100,
		Rule: Rule{Step: 0.25, Bits: 16},
	},
	"v": {
		Key: "v", ShortName: "v", ParamID: 132,
		Name: "v component of wind", Unit: "m s-1",
		Category: Wind, LevelType: "isobaricInhPa",
		PrecisionDigits: 1, Min: -100, Max: 100,
		Rule: Rule{Step: 0.25, Bits: 16},
	},
}

// Canonical variable sets. Order is significant: it is the request
// order sent to providers and the column order hint for exports.
var (
	// MinimalSet fits extreme bandwidth constraints (low-tier links).
	MinimalSet = []string{"u10", "v10", "msl", "swh"}

	// StandardSet covers most offshore passages.
	StandardSet = []string{"u10", "v10", "gust", "msl", "swh", "mwp", "mwd", "tp"}

	// ExtendedSet adds the upper-air state needed to initialize an
	// onboard forecast model.
	ExtendedSet = []string{"u10", "v10", "msl", "t2m", "z", "q", "t", "u", "v"}
)

// FullSet returns every registered variable key in sorted order.
func FullSet() []string {
	return Keys()
}

// SetByName resolves a canonical set name: minimal, standard, full,
// or extended.
func SetByName(name string) ([]string, error) {
	switch name {
	case "minimal":
		return append([]string(nil), MinimalSet...), nil
	case "standard":
		return append([]string(nil), StandardSet...), nil
	case "extended":
		return append([]string(nil), ExtendedSet...), nil
	case "full":
		return FullSet(), nil
	default:
		return nil, fmt.Errorf("unknown variable set %q", name)
	}
}

// Lookup returns the definition for key, reporting whether it exists.
func Lookup(key string) (Variable, bool) {
	v, ok := variables[key]
	return v, ok
}

// RuleFor returns the quantization rule for key, falling back to
// DefaultRule for unknown variables.
func RuleFor(key string) Rule {
	if v, ok := variables[key]; ok {
		return v.Rule
	}
	return DefaultRule
}

// Keys returns all registered variable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClipRound clips data to the variable's physical bounds and rounds to
// its declared decimal precision. This is a secondary, coarser pass
// than step quantization: it exists purely to raise run-length
// redundancy before general-purpose compression, and is the only
// precision reduction applied on the columnar export path.
func ClipRound(data []float32, v Variable) []float32 {
	out := make([]float32, len(data))
	factor := math.Pow(10, float64(v.PrecisionDigits))
	for i, f := range data {
		x := float64(f)
		if x < v.Min {
			x = v.Min
		} else if x > v.Max {
			x = v.Max
		}
		out[i] = float32(math.Round(x*factor) / factor)
	}
	return out
}

// EstimateSizeMB predicts the compressed export size for a pruned
// extract without fetching any data: float32 values times an empirical
// ~4x general-purpose compression factor on quantized weather fields.
func EstimateSizeMB(varCount, latPoints, lonPoints, timeSteps int) float64 {
	const bytesPerValue = 4
	const compressionFactor = 0.25
	raw := float64(varCount) * float64(latPoints) * float64(lonPoints) * float64(timeSteps) * bytesPerValue
	return raw * compressionFactor / (1024 * 1024)
}
