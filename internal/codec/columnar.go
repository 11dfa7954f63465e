package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/marinerlabs/gridseed/internal/catalog"
	"github.com/marinerlabs/gridseed/internal/seed"
)

const (
	columnarMagic   = "GRIDTABL"
	columnarVersion = 1
)

// Column value kinds. Protocol constants.
const (
	kindInt16   = 1
	kindInt64   = 2
	kindFloat32 = 3
)

// columnDesc locates one column's zstd frame in the payload. Frames
// follow the index in column order; CompLen gives each frame's size so
// a reader can skip to the columns it wants without decompressing the
// rest.
type columnDesc struct {
	Name    string `cbor:"name"`
	Kind    uint8  `cbor:"kind"`
	RawLen  int    `cbor:"raw_len"`
	CompLen int    `cbor:"comp_len"`
}

type columnarIndex struct {
	Rows    int          `cbor:"rows"`
	Columns []columnDesc `cbor:"columns"`
}

// Table is the decoded flat view of a columnar export: one row per
// (time, lat, lon) cell, every column Rows long.
type Table struct {
	Rows      int
	TimeIdx   []int16
	TimeEpoch []int64
	Lat       []float32
	Lon       []float32
	Vars      map[string][]float32
}

// EncodeTable serializes a seed into the columnar table format: a
// magic+version prefix, a varint-delimited CBOR column index, then one
// zstd frame per column. Rows are ordered (time, lat, lon), matching
// the grid layout, and variable values are rounded to their catalog
// precision before compression.
func EncodeTable(s *seed.Seed, opts Options) ([]byte, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}

	nt, nlat, nlon := s.Shape()
	rows := nt * nlat * nlon

	timeIdx := make([]byte, 0, rows*2)
	timeEpoch := make([]byte, 0, rows*8)
	latCol := make([]byte, 0, rows*4)
	lonCol := make([]byte, 0, rows*4)
	for t := 0; t < nt; t++ {
		epoch := uint64(s.Times[t].Unix())
		for i := 0; i < nlat; i++ {
			lat := math.Float32bits(float32(s.Latitudes[i]))
			for j := 0; j < nlon; j++ {
				timeIdx = binary.LittleEndian.AppendUint16(timeIdx, uint16(t))
				timeEpoch = binary.LittleEndian.AppendUint64(timeEpoch, epoch)
				latCol = binary.LittleEndian.AppendUint32(latCol, lat)
				lonCol = binary.LittleEndian.AppendUint32(lonCol, math.Float32bits(float32(s.Longitudes[j])))
			}
		}
	}

	index := columnarIndex{Rows: rows}
	var frames []byte
	addColumn := func(name string, kind uint8, raw []byte) {
		frame := compress(raw, opts.Level)
		index.Columns = append(index.Columns, columnDesc{
			Name: name, Kind: kind, RawLen: len(raw), CompLen: len(frame),
		})
		frames = append(frames, frame...)
	}

	addColumn("time_idx", kindInt16, timeIdx)
	addColumn("time_epoch", kindInt64, timeEpoch)
	addColumn("lat", kindFloat32, latCol)
	addColumn("lon", kindFloat32, lonCol)

	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := s.Variables[name].Values
		if variable, ok := catalog.Lookup(name); ok {
			values = catalog.ClipRound(values, variable)
		}
		addColumn(name, kindFloat32, appendFloat32s(nil, values))
	}

	indexBytes, err := cborMode.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	out := make([]byte, 0, len(columnarMagic)+1+len(indexBytes)+len(frames))
	out = append(out, columnarMagic...)
	out = append(out, columnarVersion)
	out = binary.AppendUvarint(out, uint64(len(indexBytes)))
	out = append(out, indexBytes...)
	return append(out, frames...), nil
}

// DecodeTable reverses EncodeTable.
func DecodeTable(data []byte) (*Table, error) {
	if len(data) < len(columnarMagic)+1 || string(data[:len(columnarMagic)]) != columnarMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrDecoding)
	}
	if version := data[len(columnarMagic)]; version != columnarVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecoding, version)
	}

	rest := data[len(columnarMagic)+1:]
	indexLen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(len(rest)-n) < indexLen {
		return nil, fmt.Errorf("%w: truncated index", ErrDecoding)
	}
	var index columnarIndex
	if err := cbor.Unmarshal(rest[n:n+int(indexLen)], &index); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrDecoding, err)
	}
	frames := rest[n+int(indexLen):]

	table := &Table{Rows: index.Rows, Vars: make(map[string][]float32)}
	offset := 0
	for _, col := range index.Columns {
		if offset+col.CompLen > len(frames) {
			return nil, fmt.Errorf("%w: truncated column %s", ErrDecoding, col.Name)
		}
		raw, err := decompress(frames[offset : offset+col.CompLen])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if len(raw) != col.RawLen {
			return nil, fmt.Errorf("%w: column %s decompressed to %d bytes, expected %d",
				ErrDecoding, col.Name, len(raw), col.RawLen)
		}
		offset += col.CompLen

		switch col.Kind {
		case kindInt16:
			values := make([]int16, len(raw)/2)
			for i := range values {
				values[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			if col.Name == "time_idx" {
				table.TimeIdx = values
			}

		case kindInt64:
			values := make([]int64, len(raw)/8)
			for i := range values {
				values[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
			}
			if col.Name == "time_epoch" {
				table.TimeEpoch = values
			}

		case kindFloat32:
			values := make([]float32, len(raw)/4)
			for i := range values {
				values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			}
			switch col.Name {
			case "lat":
				table.Lat = values
			case "lon":
				table.Lon = values
			default:
				table.Vars[col.Name] = values
			}

		default:
			return nil, fmt.Errorf("%w: unknown column kind %d for %s", ErrDecoding, col.Kind, col.Name)
		}
	}

	return table, nil
}
