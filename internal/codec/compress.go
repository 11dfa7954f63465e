package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Level selects the zstd compression effort for an export.
type Level string

const (
	LevelFast    Level = "fast"    // zstd level 3, interactive exports
	LevelDefault Level = "default" // zstd level 9
	LevelMax     Level = "max"     // zstd level 19, scheduled/offline exports
)

// zstdLevel maps an export level to the underlying zstd level.
func zstdLevel(level Level) int {
	switch level {
	case LevelFast:
		return 3
	case LevelMax:
		return 19
	default:
		return 9
	}
}

// Shared encoders (one per level) and a shared decoder. zstd.Encoder
// and zstd.Decoder are safe for concurrent use, so building them once
// avoids per-export window allocation.
var (
	zstdEncoders map[Level]*zstd.Encoder
	zstdDecoder  *zstd.Decoder

	// cborMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the
	// same seed always produces identical header bytes.
	cborMode cbor.EncMode
)

func init() {
	zstdEncoders = make(map[Level]*zstd.Encoder, 3)
	for _, level := range []Level{LevelFast, LevelDefault, LevelMax} {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel(level))),
		)
		if err != nil {
			panic("codec: zstd encoder initialization failed: " + err.Error())
		}
		zstdEncoders[level] = encoder
	}

	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}

	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: cbor encoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, level Level) []byte {
	encoder, ok := zstdEncoders[level]
	if !ok {
		encoder = zstdEncoders[LevelDefault]
	}
	return encoder.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrDecoding, err)
	}
	return out, nil
}
