package archive

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec is a byte-stream compression applied around a tar container.
type Codec int

const (
	CodecNone Codec = iota
	CodecGzip
	CodecXz
	CodecBzip2
	CodecZstd
	CodecLz4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecXz:
		return "xz"
	case CodecBzip2:
		return "bzip2"
	case CodecZstd:
		return "zstd"
	case CodecLz4:
		return "lz4"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// DefaultLevel asks a codec for its own default compression level.
const DefaultLevel = 0

// xz has no level presets of its own; these dictionary sizes follow the
// xz(1) preset table.
var xzDictCaps = [...]int{
	1: 1 << 20,
	2: 2 << 20,
	3: 4 << 20,
	4: 4 << 20,
	5: 8 << 20,
	6: 8 << 20,
	7: 16 << 20,
	8: 32 << 20,
	9: 64 << 20,
}

var lz4Levels = [...]lz4.CompressionLevel{
	1: lz4.Level1,
	2: lz4.Level2,
	3: lz4.Level3,
	4: lz4.Level4,
	5: lz4.Level5,
	6: lz4.Level6,
	7: lz4.Level7,
	8: lz4.Level8,
	9: lz4.Level9,
}

// Wrap returns a writer that compresses everything written to it with codec
// and forwards the result to sink. Closing the returned writer flushes the
// codec trailer but never closes sink. CodecNone returns a pass-through.
//
// Construction never degrades: an unknown codec or an out-of-range level
// fails with ErrCodecInit before anything reaches sink.
func Wrap(sink io.Writer, codec Codec, level int) (io.WriteCloser, error) {
	wc, err := newCodecWriter(sink, codec, level)
	if err != nil {
		return nil, newError(ErrCodecInit, "open "+codec.String(), "", err)
	}
	return wc, nil
}

func newCodecWriter(sink io.Writer, codec Codec, level int) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		if level != DefaultLevel {
			return nil, fmt.Errorf("compression level %d set without a codec", level)
		}
		return nopWriteCloser{sink}, nil

	case CodecGzip:
		if level == DefaultLevel {
			level = gzip.DefaultCompression
		}
		if level != gzip.DefaultCompression && (level < gzip.BestSpeed || level > gzip.BestCompression) {
			return nil, fmt.Errorf("gzip level %d out of range", level)
		}
		return gzip.NewWriterLevel(sink, level)

	case CodecXz:
		cfg := xz.WriterConfig{}
		if level != DefaultLevel {
			if level < 1 || level >= len(xzDictCaps) {
				return nil, fmt.Errorf("xz level %d out of range", level)
			}
			cfg.DictCap = xzDictCaps[level]
		}
		if err := cfg.Verify(); err != nil {
			return nil, err
		}
		return cfg.NewWriter(sink)

	case CodecBzip2:
		if level == DefaultLevel {
			level = bzip2.DefaultCompression
		}
		if level < bzip2.BestSpeed || level > bzip2.BestCompression {
			return nil, fmt.Errorf("bzip2 level %d out of range", level)
		}
		return bzip2.NewWriter(sink, &bzip2.WriterConfig{Level: level})

	case CodecZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != DefaultLevel {
			if level < 1 || level > 22 {
				return nil, fmt.Errorf("zstd level %d out of range", level)
			}
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(sink, opts...)

	case CodecLz4:
		zw := lz4.NewWriter(sink)
		opts := []lz4.Option{lz4.ConcurrencyOption(1)}
		if level != DefaultLevel {
			if level < 1 || level >= len(lz4Levels) {
				return nil, fmt.Errorf("lz4 level %d out of range", level)
			}
			opts = append(opts, lz4.CompressionLevelOption(lz4Levels[level]))
		}
		if err := zw.Apply(opts...); err != nil {
			return nil, err
		}
		return zw, nil

	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
