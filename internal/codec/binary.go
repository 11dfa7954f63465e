// Package codec serializes seeds into the two transfer formats: a
// compact tagged binary for satellite delivery and a columnar table
// for shoreside analytics. Both carry quantized values and compress
// the payload with zstd; the binary format optimizes for smallest
// bytes on the wire, the columnar format for per-variable scans.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/quantize"
	"github.com/marinerlabs/gridseed/internal/seed"
)

// ErrDecoding indicates a payload that is not a valid seed export:
// wrong magic, unsupported version, or internally inconsistent
// lengths.
var ErrDecoding = errors.New("seed decoding")

const (
	binaryMagic   = "GRIDSEED"
	binaryVersion = 1
)

// Value encodings for variable blocks. Protocol constants.
const (
	encodingRaw     = 0 // float32 little-endian, lossless
	encodingQuant8  = 1 // uint8 fixed-point
	encodingQuant16 = 2 // uint16 little-endian fixed-point
)

// Options controls an export.
type Options struct {
	// Level selects the zstd effort; zero value means LevelDefault.
	Level Level

	// Lossless skips quantization and stores raw float32 values.
	// Roughly doubles the payload; used for validation runs.
	Lossless bool
}

// binaryHeader is the CBOR metadata prefix of the compact format.
// Times are unix seconds so the deterministic encoder produces stable
// bytes regardless of time zone.
type binaryHeader struct {
	ID            string            `cbor:"id"`
	ModelSource   string            `cbor:"model_source"`
	ModelRun      int64             `cbor:"model_run"`
	CreatedAt     int64             `cbor:"created_at"`
	Region        geo.Region        `cbor:"region"`
	ResolutionDeg float64           `cbor:"resolution_deg"`
	TimeStepHours int               `cbor:"time_step_hours"`
	Times         []int64           `cbor:"times"`
	Latitudes     []float64         `cbor:"latitudes"`
	Longitudes    []float64         `cbor:"longitudes"`
	Metadata      map[string]string `cbor:"metadata,omitempty"`
	Blocks        []variableBlock   `cbor:"blocks"`
}

// variableBlock describes one variable's data block. Blocks are laid
// out after the header in the order they appear here, which is sorted
// by name so encoding is deterministic.
type variableBlock struct {
	Name     string  `cbor:"name"`
	Encoding uint8   `cbor:"encoding"`
	Scale    float64 `cbor:"scale"`
	Offset   float64 `cbor:"offset"`
	Count    int     `cbor:"count"`
}

// Encode serializes a seed into the compact binary format. The layout
// is an uncompressed 9-byte magic+version prefix followed by one zstd
// frame holding a varint-delimited CBOR header and the concatenated
// variable blocks. Values pass through untouched on the lossless path;
// precision clipping belongs to the columnar format only.
//
// The seed is validated up front, so an inconsistent seed fails here
// instead of surfacing as a corrupt export at decode time.
func Encode(s *seed.Seed, opts Options) ([]byte, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	header := binaryHeader{
		ID:            s.ID,
		ModelSource:   s.ModelSource,
		ModelRun:      s.ModelRun.Unix(),
		CreatedAt:     s.CreatedAt.Unix(),
		Region:        s.Region,
		ResolutionDeg: s.ResolutionDeg,
		TimeStepHours: s.TimeStepHours,
		Times:         make([]int64, len(s.Times)),
		Latitudes:     s.Latitudes,
		Longitudes:    s.Longitudes,
		Metadata:      s.Metadata,
	}
	for i, ts := range s.Times {
		header.Times[i] = ts.Unix()
	}

	var blocks []byte
	for _, name := range names {
		values := s.Variables[name].Values

		block := variableBlock{Name: name, Count: len(values)}
		if opts.Lossless {
			block.Encoding = encodingRaw
			blocks = appendFloat32s(blocks, values)
		} else {
			rule := catalog.RuleFor(name)
			ints, params := quantize.Compress(values, rule.Step, rule.Bits)
			block.Scale = params.Scale
			block.Offset = params.Offset
			if params.Bits == 8 {
				block.Encoding = encodingQuant8
				for _, q := range ints {
					blocks = append(blocks, byte(q))
				}
			} else {
				block.Encoding = encodingQuant16
				for _, q := range ints {
					blocks = binary.LittleEndian.AppendUint16(blocks, q)
				}
			}
		}
		header.Blocks = append(header.Blocks, block)
	}

	headerBytes, err := cborMode.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	body := binary.AppendUvarint(nil, uint64(len(headerBytes)))
	body = append(body, headerBytes...)
	body = append(body, blocks...)

	out := make([]byte, 0, len(binaryMagic)+1+len(body)/3)
	out = append(out, binaryMagic...)
	out = append(out, binaryVersion)
	return append(out, compress(body, opts.Level)...), nil
}

// Decode reverses Encode. Quantized variables come back dequantized;
// the round-trip error per value is bounded by scale/2.
func Decode(data []byte) (*seed.Seed, error) {
	if len(data) < len(binaryMagic)+1 || string(data[:len(binaryMagic)]) != binaryMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrDecoding)
	}
	if version := data[len(binaryMagic)]; version != binaryVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecoding, version)
	}

	body, err := decompress(data[len(binaryMagic)+1:])
	if err != nil {
		return nil, err
	}

	headerLen, n := binary.Uvarint(body)
	if n <= 0 || uint64(len(body)-n) < headerLen {
		return nil, fmt.Errorf("%w: truncated header", ErrDecoding)
	}
	var header binaryHeader
	if err := cbor.Unmarshal(body[n:n+int(headerLen)], &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrDecoding, err)
	}
	blocks := body[n+int(headerLen):]

	s := &seed.Seed{
		ID:            header.ID,
		CreatedAt:     time.Unix(header.CreatedAt, 0).UTC(),
		ModelSource:   header.ModelSource,
		ModelRun:      time.Unix(header.ModelRun, 0).UTC(),
		Region:        header.Region,
		ResolutionDeg: header.ResolutionDeg,
		TimeStepHours: header.TimeStepHours,
		Times:         make([]time.Time, len(header.Times)),
		Latitudes:     header.Latitudes,
		Longitudes:    header.Longitudes,
		Metadata:      header.Metadata,
		Variables:     make(map[string]seed.Grid, len(header.Blocks)),
	}
	for i, ts := range header.Times {
		s.Times[i] = time.Unix(ts, 0).UTC()
	}
	if len(s.Times) > 0 {
		s.ForecastStart = s.Times[0]
		s.ForecastEnd = s.Times[len(s.Times)-1]
	}

	wantT, wantLat, wantLon := s.Shape()
	offset := 0
	for _, block := range header.Blocks {
		if block.Count != wantT*wantLat*wantLon {
			return nil, fmt.Errorf("%w: variable %s has %d values, grid needs %d",
				ErrDecoding, block.Name, block.Count, wantT*wantLat*wantLon)
		}

		values := make([]float32, block.Count)
		switch block.Encoding {
		case encodingRaw:
			if offset+block.Count*4 > len(blocks) {
				return nil, fmt.Errorf("%w: truncated block %s", ErrDecoding, block.Name)
			}
			for i := range values {
				bits := binary.LittleEndian.Uint32(blocks[offset+i*4:])
				values[i] = math.Float32frombits(bits)
			}
			offset += block.Count * 4

		case encodingQuant8:
			if offset+block.Count > len(blocks) {
				return nil, fmt.Errorf("%w: truncated block %s", ErrDecoding, block.Name)
			}
			ints := make([]uint16, block.Count)
			for i := range ints {
				ints[i] = uint16(blocks[offset+i])
			}
			offset += block.Count
			values = quantize.Decompress(ints, quantize.Params{
				Scale: block.Scale, Offset: block.Offset, Bits: 8,
			})

		case encodingQuant16:
			if offset+block.Count*2 > len(blocks) {
				return nil, fmt.Errorf("%w: truncated block %s", ErrDecoding, block.Name)
			}
			ints := make([]uint16, block.Count)
			for i := range ints {
				ints[i] = binary.LittleEndian.Uint16(blocks[offset+i*2:])
			}
			offset += block.Count * 2
			values = quantize.Decompress(ints, quantize.Params{
				Scale: block.Scale, Offset: block.Offset, Bits: 16,
			})

		default:
			return nil, fmt.Errorf("%w: unknown encoding %d for %s", ErrDecoding, block.Encoding, block.Name)
		}

		s.Variables[block.Name] = seed.Grid{Times: wantT, Lats: wantLat, Lons: wantLon, Values: values}
	}

	return s, nil
}

func appendFloat32s(dst []byte, values []float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
