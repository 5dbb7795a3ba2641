// Package store implements the columnar dataset store: a single file that
// addresses every series by a hierarchical path key and holds each table
// as a compressed Parquet member.
package store

import (
	"github.com/apache/arrow/go/v14/parquet/compress"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// FileName is the store file name inside a dataset directory.
const FileName = "dataset.zip"

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip", "zlib":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

func (c CompressionType) codec() compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// Options configures how tables are encoded.
type Options struct {
	// Compression codec for Parquet pages.
	Compression CompressionType

	// CompressionLevel is passed to the codec. Gzip accepts 1..9 and zstd
	// 1..22; zero selects the codec default. Other codecs ignore it.
	CompressionLevel int

	// BatchSize is the number of rows per record batch.
	BatchSize int
}

// DefaultOptions returns zlib-class compression at its highest level.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionGzip,
		CompressionLevel: 9,
		BatchSize:        64 * 1024,
	}
}

// levelRange returns the accepted compression levels of c. ok is false for
// codecs without levels.
func (c CompressionType) levelRange() (lo, hi int, ok bool) {
	switch c {
	case CompressionGzip:
		return 1, 9, true
	case CompressionZstd:
		return 1, 22, true
	default:
		return 0, 0, false
	}
}

// Validate rejects compression levels the codec would panic on.
func (o Options) Validate() error {
	lo, hi, ok := o.Compression.levelRange()
	if !ok || o.CompressionLevel == 0 {
		return nil
	}
	if o.CompressionLevel < lo || o.CompressionLevel > hi {
		return nferrors.Newf(nferrors.CodeConfiguration, "%s compression level must be in %d..%d, got %d",
			o.Compression, lo, hi, o.CompressionLevel)
	}
	return nil
}
