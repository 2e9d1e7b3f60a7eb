package archive

import (
	"fmt"
	"strings"
)

// Format selects the container and compression of an export.
type Format int

const (
	FormatZip Format = iota
	FormatTar
	FormatTarGzip
	FormatTarXz
	FormatTarBzip2
	FormatTarZstd
	FormatTarLz4
)

type formatInfo struct {
	name        string
	ext         string
	contentType string
	codec       Codec
	aliases     []string
}

var formats = map[Format]formatInfo{
	FormatZip:      {"zip", ".zip", "application/zip", CodecNone, nil},
	FormatTar:      {"tar", ".tar", "application/x-tar", CodecNone, nil},
	FormatTarGzip:  {"tar.gz", ".tar.gz", "application/gzip", CodecGzip, []string{"tgz", "gz", "gzip"}},
	FormatTarXz:    {"tar.xz", ".tar.xz", "application/x-xz", CodecXz, []string{"txz", "xz"}},
	FormatTarBzip2: {"tar.bz2", ".tar.bz2", "application/x-bzip2", CodecBzip2, []string{"tbz2", "bz2", "bzip2"}},
	FormatTarZstd:  {"tar.zst", ".tar.zst", "application/zstd", CodecZstd, []string{"tzst", "zst", "zstd"}},
	FormatTarLz4:   {"tar.lz4", ".tar.lz4", "application/x-lz4", CodecLz4, []string{"lz4"}},
}

// formatOrder lists formats longest extension first so filename matching
// prefers ".tar.gz" over ".gz".
var formatOrder = []Format{
	FormatTarGzip, FormatTarXz, FormatTarBzip2, FormatTarZstd, FormatTarLz4, FormatTar, FormatZip,
}

func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Extension returns the conventional file extension, including the dot.
func (f Format) Extension() string { return formats[f].ext }

// ContentType returns the media type served for archives of this format.
func (f Format) ContentType() string { return formats[f].contentType }

// Codec returns the compression applied around the container. It is always
// CodecNone for zip.
func (f Format) Codec() Codec { return formats[f].codec }

// IsTar reports whether the container is tar.
func (f Format) IsTar() bool {
	_, known := formats[f]
	return known && f != FormatZip
}

// ParseFormat accepts a format name or alias, case-insensitively, with or
// without a leading dot: "zip", "tar", "tar.gz", "tgz", ".tar.xz", "bzip2".
func ParseFormat(s string) (Format, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for _, f := range formatOrder {
		info := formats[f]
		if key == info.name {
			return f, nil
		}
		for _, alias := range info.aliases {
			if key == alias {
				return f, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown archive format %q", s)
}

// FormatFromFilename infers the format from a file name's extension.
func FormatFromFilename(name string) (Format, bool) {
	lower := strings.ToLower(name)
	for _, f := range formatOrder {
		info := formats[f]
		if strings.HasSuffix(lower, info.ext) {
			return f, true
		}
		for _, alias := range info.aliases {
			if strings.HasSuffix(lower, "."+alias) {
				return f, true
			}
		}
	}
	return 0, false
}
