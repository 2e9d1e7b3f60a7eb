package archive

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// DefaultZipComment is the archive-level comment identifying the generator.
const DefaultZipComment = "Generated by got-archive"

// ZipWriter writes entries into a zip container.
//
// Symlinks have no header type of their own in zip. They are stored the way
// Info-ZIP does it: the body is the link target text and the external
// attributes carry S_IFLNK|0777. Extractors that honor unix attributes
// recreate the link; others produce a small file holding the target.
type ZipWriter struct {
	zw       *zip.Writer
	cur      *entryBody
	curPath  string
	inEntry  bool
	finished bool
}

// NewZipWriter returns a ZipWriter streaming to w. An empty comment uses
// DefaultZipComment. level selects the deflate level (1-9); DefaultLevel
// keeps the compressor's default. A bad level fails with ErrCodecInit.
func NewZipWriter(w io.Writer, comment string, level int) (*ZipWriter, error) {
	if comment == "" {
		comment = DefaultZipComment
	}
	if level != DefaultLevel && (level < flate.BestSpeed || level > flate.BestCompression) {
		return nil, newError(ErrCodecInit, "open deflate", "", fmt.Errorf("deflate level %d out of range", level))
	}
	zw := zip.NewWriter(w)
	if err := zw.SetComment(comment); err != nil {
		return nil, newError(ErrWrite, "set zip comment", "", err)
	}
	if level != DefaultLevel {
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}
	return &ZipWriter{zw: zw}, nil
}

// Begin writes the local file header for meta. The sink is not seekable, so
// the local header carries zero CRC and sizes with the data descriptor flag
// set; the real values follow the body in the data descriptor and again in
// the central directory. meta.Size only bounds what End accepts.
func (z *ZipWriter) Begin(meta EntryMeta) (io.Writer, error) {
	if err := z.checkBegin(meta.Path); err != nil {
		return nil, err
	}

	name := strings.TrimLeft(meta.Path, "/")
	fh := &zip.FileHeader{
		Name:     name,
		Comment:  meta.Comment,
		Method:   zip.Deflate,
		Modified: meta.ModTime.UTC(),
	}

	size := meta.Size
	mode := meta.Mode
	if meta.IsSymlink() {
		size = int64(len(meta.SymlinkTarget))
		mode = fs.ModeSymlink | 0o777
	}
	fh.UncompressedSize64 = uint64(size)
	fh.SetMode(mode)

	w, err := z.zw.CreateHeader(fh)
	if err != nil {
		return nil, newError(ErrWrite, "write header", meta.Path, err)
	}
	z.inEntry = true
	z.curPath = meta.Path
	z.cur = &entryBody{w: w, path: meta.Path, declared: size}

	if meta.IsSymlink() {
		if _, err := io.WriteString(z.cur, meta.SymlinkTarget); err != nil {
			return nil, err
		}
		return closedBody{path: meta.Path}, nil
	}
	return z.cur, nil
}

// End completes the current entry.
func (z *ZipWriter) End() error {
	if !z.inEntry {
		return newError(ErrWrite, "end entry", "", errNoEntry)
	}
	z.inEntry = false
	return z.cur.check()
}

// Finish writes the central directory and archive comment. It does not
// close the underlying writer.
func (z *ZipWriter) Finish() error {
	if z.finished {
		return newError(ErrWrite, "finish", "", errFinished)
	}
	if z.inEntry {
		return newError(ErrWrite, "finish", z.curPath, errEntryOpen)
	}
	z.finished = true
	if err := z.zw.Close(); err != nil {
		return newError(ErrWrite, "finish", "", err)
	}
	return nil
}

func (z *ZipWriter) checkBegin(path string) error {
	switch {
	case z.finished:
		return newError(ErrWrite, "begin entry", path, errFinished)
	case z.inEntry:
		return newError(ErrWrite, "begin entry", path, errEntryOpen)
	}
	return nil
}
