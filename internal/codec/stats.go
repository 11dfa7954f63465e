package codec

import (
	"sort"

	"github.com/marinerlabs/gridseed/internal/cost"
	"github.com/marinerlabs/gridseed/internal/seed"
)

// Format names as they appear in stats, announcements and CLI output.
const (
	FormatBinary   = "binary"
	FormatColumnar = "columnar"
)

// ExportStats summarizes one export for logging and cost reporting.
type ExportStats struct {
	Format        string             `json:"format"`
	InputBytes    int                `json:"input_bytes"`
	OutputBytes   int                `json:"output_bytes"`
	Ratio         float64            `json:"ratio"`
	Variables     []string           `json:"variables"`
	GridPoints    int                `json:"grid_points"`
	TimeSteps     int                `json:"time_steps"`
	CostEstimates map[string]float64 `json:"cost_estimates"`
}

// Stats computes export statistics for an already-encoded payload.
// InputBytes counts the raw float32 variable arrays only, so Ratio
// reflects what compression bought relative to the data itself.
func Stats(s *seed.Seed, format string, encoded []byte) ExportStats {
	input := 0
	names := make([]string, 0, len(s.Variables))
	for name, grid := range s.Variables {
		input += grid.Len() * 4
		names = append(names, name)
	}
	sort.Strings(names)

	ratio := 0.0
	if len(encoded) > 0 {
		ratio = float64(input) / float64(len(encoded))
	}

	return ExportStats{
		Format:        format,
		InputBytes:    input,
		OutputBytes:   len(encoded),
		Ratio:         ratio,
		Variables:     names,
		GridPoints:    s.GridPoints(),
		TimeSteps:     len(s.Times),
		CostEstimates: cost.EstimateAll(len(encoded)),
	}
}

// Compare encodes the seed in both formats at the same level and
// returns the stats side by side, binary first. Used by the CLI to
// show the size/cost tradeoff for a route.
func Compare(s *seed.Seed, opts Options) ([]ExportStats, error) {
	binaryBytes, err := Encode(s, opts)
	if err != nil {
		return nil, err
	}
	tableBytes, err := EncodeTable(s, opts)
	if err != nil {
		return nil, err
	}
	return []ExportStats{
		Stats(s, FormatBinary, binaryBytes),
		Stats(s, FormatColumnar, tableBytes),
	}, nil
}
