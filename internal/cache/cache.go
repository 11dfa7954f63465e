// Package cache is the content-addressed seed cache. Entries are
// keyed by request fingerprint: the same region, run, horizon and
// variable set always maps to the same key, so a cache hit skips the
// upstream fetch entirely. Writers race benignly — both produce
// identical content and the last rename wins.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/seed"
)

// ErrCache indicates a corrupt cache entry. Callers treat it as a
// miss after evicting the entry.
var ErrCache = errors.New("cache entry")

const (
	blobExt = ".bin"
	metaExt = ".json"

	// Blob compression flags (first byte of the blob file).
	blobRaw = 0
	blobLZ4 = 1
)

// Store is a directory-backed seed cache. Blobs are CBOR-serialized
// seeds behind LZ4 block compression; LZ4 keeps cache writes off the
// fetch critical path. A small JSON sidecar per entry makes the cache
// greppable during incident debugging.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// entry is the on-disk seed representation. Times are unix seconds;
// grids are flat float32 slices with shared dimensions.
type entry struct {
	ID            string               `cbor:"id"`
	CreatedAt     int64                `cbor:"created_at"`
	ModelSource   string               `cbor:"model_source"`
	ModelRun      int64                `cbor:"model_run"`
	Region        geo.Region           `cbor:"region"`
	ResolutionDeg float64              `cbor:"resolution_deg"`
	TimeStepHours int                  `cbor:"time_step_hours"`
	Times         []int64              `cbor:"times"`
	Latitudes     []float64            `cbor:"latitudes"`
	Longitudes    []float64            `cbor:"longitudes"`
	Metadata      map[string]string    `cbor:"metadata,omitempty"`
	Variables     map[string][]float32 `cbor:"variables"`
}

// sidecar is the human-readable summary written next to each blob.
type sidecar struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	CreatedAt   time.Time `json:"created_at"`
	ModelSource string    `json:"model_source"`
	ModelRun    time.Time `json:"model_run"`
	Variables   []string  `json:"variables"`
	RawBytes    int       `json:"raw_bytes"`
	StoredBytes int       `json:"stored_bytes"`
}

// Save writes the seed under key, atomically replacing any existing
// entry.
func (st *Store) Save(key string, s *seed.Seed) error {
	e := entry{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt.Unix(),
		ModelSource:   s.ModelSource,
		ModelRun:      s.ModelRun.Unix(),
		Region:        s.Region,
		ResolutionDeg: s.ResolutionDeg,
		TimeStepHours: s.TimeStepHours,
		Times:         make([]int64, len(s.Times)),
		Latitudes:     s.Latitudes,
		Longitudes:    s.Longitudes,
		Metadata:      s.Metadata,
		Variables:     make(map[string][]float32, len(s.Variables)),
	}
	for i, ts := range s.Times {
		e.Times[i] = ts.Unix()
	}
	names := make([]string, 0, len(s.Variables))
	for name, g := range s.Variables {
		e.Variables[name] = g.Values
		names = append(names, name)
	}
	sort.Strings(names)

	raw, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	blob := packBlob(raw)

	if err := st.writeAtomic(key+blobExt, blob); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(sidecar{
		ID:          s.ID,
		Key:         key,
		CreatedAt:   s.CreatedAt,
		ModelSource: s.ModelSource,
		ModelRun:    s.ModelRun,
		Variables:   names,
		RawBytes:    len(raw),
		StoredBytes: len(blob),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache sidecar: %w", err)
	}
	return st.writeAtomic(key+metaExt, meta)
}

// Load returns the cached seed for key, or (nil, nil) on a miss.
// Corrupt entries are evicted and reported as ErrCache.
func (st *Store) Load(key string) (*seed.Seed, error) {
	blob, err := os.ReadFile(filepath.Join(st.dir, key+blobExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	s, err := st.decode(blob)
	if err != nil {
		st.logger.Warn("evicting corrupt cache entry", "key", key, "error", err)
		st.Delete(key)
		return nil, fmt.Errorf("%w %s: %v", ErrCache, key, err)
	}
	return s, nil
}

func (st *Store) decode(blob []byte) (*seed.Seed, error) {
	raw, err := unpackBlob(blob)
	if err != nil {
		return nil, err
	}

	var e entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	s := &seed.Seed{
		ID:            e.ID,
		CreatedAt:     time.Unix(e.CreatedAt, 0).UTC(),
		ModelSource:   e.ModelSource,
		ModelRun:      time.Unix(e.ModelRun, 0).UTC(),
		Region:        e.Region,
		ResolutionDeg: e.ResolutionDeg,
		TimeStepHours: e.TimeStepHours,
		Times:         make([]time.Time, len(e.Times)),
		Latitudes:     e.Latitudes,
		Longitudes:    e.Longitudes,
		Metadata:      e.Metadata,
		Variables:     make(map[string]seed.Grid, len(e.Variables)),
	}
	for i, ts := range e.Times {
		s.Times[i] = time.Unix(ts, 0).UTC()
	}
	if len(s.Times) > 0 {
		s.ForecastStart = s.Times[0]
		s.ForecastEnd = s.Times[len(s.Times)-1]
	}

	nt, nlat, nlon := s.Shape()
	for name, values := range e.Variables {
		if len(values) != nt*nlat*nlon {
			return nil, fmt.Errorf("variable %s has %d values, grid needs %d", name, len(values), nt*nlat*nlon)
		}
		s.Variables[name] = seed.Grid{Times: nt, Lats: nlat, Lons: nlon, Values: values}
	}
	return s, nil
}

// Delete removes an entry. Missing entries are not an error.
func (st *Store) Delete(key string) {
	os.Remove(filepath.Join(st.dir, key+blobExt))
	os.Remove(filepath.Join(st.dir, key+metaExt))
}

// Keys lists the cached fingerprints.
func (st *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var keys []string
	for _, de := range entries {
		if name := de.Name(); strings.HasSuffix(name, blobExt) {
			keys = append(keys, strings.TrimSuffix(name, blobExt))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (st *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(st.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(st.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

// packBlob prefixes the LZ4-compressed payload with a flag byte and
// the raw length. Incompressible payloads are stored raw.
func packBlob(raw []byte) []byte {
	header := func(flag byte) []byte {
		out := []byte{flag}
		return binary.AppendUvarint(out, uint64(len(raw)))
	}

	bound := lz4.CompressBlockBound(len(raw))
	dst := make([]byte, bound)
	written, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil || written == 0 || written >= len(raw) {
		return append(header(blobRaw), raw...)
	}
	return append(header(blobLZ4), dst[:written]...)
}

func unpackBlob(blob []byte) ([]byte, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("blob too short")
	}
	flag := blob[0]
	rawLen, n := binary.Uvarint(blob[1:])
	if n <= 0 {
		return nil, fmt.Errorf("bad blob header")
	}
	payload := blob[1+n:]

	switch flag {
	case blobRaw:
		if uint64(len(payload)) != rawLen {
			return nil, fmt.Errorf("raw blob length %d, header says %d", len(payload), rawLen)
		}
		return payload, nil
	case blobLZ4:
		raw := make([]byte, rawLen)
		read, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if uint64(read) != rawLen {
			return nil, fmt.Errorf("lz4 blob expanded to %d, header says %d", read, rawLen)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown blob flag %d", flag)
	}
}
