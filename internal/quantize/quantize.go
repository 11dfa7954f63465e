// Package quantize implements the lossy fixed-point compression core.
//
// A float32 field is mapped to small unsigned integers plus a
// scale/offset pair. When the caller's declared step fits the target
// bit width the encoding is exact fixed-point: the physical resolution
// the step promises is preserved exactly. When it does not fit, the
// scale degrades gracefully to span the observed range instead of
// overflowing. Either way the round-trip error of every element is
// bounded by scale/2 — that bound is the engine's fidelity contract.
package quantize

import "math"

// Params is the decoding key for one quantized array. It is produced
// by Compress, must travel with the integer payload in any persisted
// form, and is all Decompress needs.
type Params struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Bits   int     `json:"bits"`
}

// Compress encodes data as unsigned integers of the requested width.
//
// step is the desired physical resolution (0 means auto-scale to the
// observed range); bits is 8 or 16 (anything else is treated as 16).
// Non-finite input values are replaced with 0 before encoding. The
// returned slice always uses uint16 storage; Params.Bits records the
// effective container width for wire packing.
func Compress(data []float32, step float64, bits int) ([]uint16, Params) {
	if bits <= 8 {
		bits = 8
	} else {
		bits = 16
	}
	maxInt := float64(uint64(1)<<uint(bits) - 1)

	// Scrub non-finite values, then pre-snap to the step grid. The
	// snap raises the count of repeated values for the downstream
	// byte compressor; it is not the final integer encoding.
	clean := make([]float64, len(data))
	for i, f := range data {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}
		if step > 0 {
			x = math.Round(x/step) * step
		}
		clean[i] = x
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, x := range clean {
		minVal = math.Min(minVal, x)
		maxVal = math.Max(maxVal, x)
	}
	if len(clean) == 0 {
		minVal, maxVal = 0, 0
	}
	rangeVal := maxVal - minVal

	var scale float64
	switch {
	case rangeVal == 0:
		// Degenerate constant field.
		scale = 1
	case step > 0 && rangeVal/step <= maxInt:
		// Fixed-point: the declared resolution is honored exactly.
		scale = step
	default:
		// The step cannot be represented at this width (or no step
		// was given); spread the observed range across the integer
		// range instead.
		scale = rangeVal / maxInt
	}

	out := make([]uint16, len(clean))
	for i, x := range clean {
		q := math.Round((x - minVal) / scale)
		if q < 0 {
			q = 0
		} else if q > maxInt {
			q = maxInt
		}
		out[i] = uint16(q)
	}

	return out, Params{
		Scale:  scale,
		Offset: minVal,
		Min:    minVal,
		Max:    maxVal,
		Bits:   bits,
	}
}

// Decompress reverses Compress: value = offset + integer*scale.
func Decompress(values []uint16, p Params) []float32 {
	out := make([]float32, len(values))
	for i, q := range values {
		out[i] = float32(p.Offset + float64(q)*p.Scale)
	}
	return out
}
