package cachestore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a stored
// artifact. The tag is persisted as the first byte of every disk entry, so
// a store survives the default algorithm changing between runs. The values
// are format constants; changing them breaks existing stores.
type CompressionTag uint8

const (
	// CompressionNone stores the artifact bytes as-is. Right choice when
	// the cached paths are already compressed (crates, wheels, archives).
	CompressionNone CompressionTag = 0

	// CompressionLZ4 applies LZ4 frame compression. Fast default for
	// mixed build output where decode speed matters more than ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd applies zstd at its default level. Better ratios
	// for text-heavy artifacts (logs, generated sources, metadata).
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression tag from its string form, as
// supplied on the CLI.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (expected none, lz4 or zstd)", name)
	}
}

// compress encodes data with the given algorithm.
func compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		out := enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", uint8(tag))
	}
}

// decompress decodes data that was encoded with the given algorithm.
func decompress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", uint8(tag))
	}
}
