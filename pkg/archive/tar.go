package archive

import (
	"archive/tar"
	"io"
	"time"
)

// TarWriter writes entries into a tar container.
//
// Header format is chosen per entry: plain USTAR when the name fits, PAX
// records for non-ASCII or over-long names and link targets. Ownership is
// always root with empty user and group names so output depends only on the
// tree being exported.
type TarWriter struct {
	tw       *tar.Writer
	cur      *entryBody
	curPath  string
	inEntry  bool
	finished bool
}

// NewTarWriter returns a TarWriter streaming to w.
func NewTarWriter(w io.Writer) *TarWriter {
	return &TarWriter{tw: tar.NewWriter(w)}
}

// Begin writes the header for meta. Symlinks are written as TypeSymlink
// headers with the target in the link-name field and no body.
func (t *TarWriter) Begin(meta EntryMeta) (io.Writer, error) {
	switch {
	case t.finished:
		return nil, newError(ErrWrite, "begin entry", meta.Path, errFinished)
	case t.inEntry:
		return nil, newError(ErrWrite, "begin entry", meta.Path, errEntryOpen)
	}

	hdr := &tar.Header{
		Name: meta.Path,
		// Sub-second precision would force PAX time records on every entry.
		ModTime: meta.ModTime.Truncate(time.Second),
	}
	if meta.IsSymlink() {
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = meta.SymlinkTarget
		hdr.Mode = 0o777
	} else {
		hdr.Typeflag = tar.TypeReg
		hdr.Mode = int64(meta.Mode.Perm())
		hdr.Size = meta.Size
	}

	if err := t.tw.WriteHeader(hdr); err != nil {
		return nil, newError(ErrWrite, "write header", meta.Path, err)
	}
	t.inEntry = true
	t.curPath = meta.Path
	t.cur = &entryBody{w: t.tw, path: meta.Path, declared: hdr.Size}

	if meta.IsSymlink() {
		return closedBody{path: meta.Path}, nil
	}
	return t.cur, nil
}

// End completes the current entry, padding its body to the block size.
func (t *TarWriter) End() error {
	if !t.inEntry {
		return newError(ErrWrite, "end entry", "", errNoEntry)
	}
	t.inEntry = false
	if err := t.cur.check(); err != nil {
		return err
	}
	if err := t.tw.Flush(); err != nil {
		return newError(ErrWrite, "end entry", t.curPath, err)
	}
	return nil
}

// Finish writes the two zero blocks that terminate a tar stream. It does
// not close the underlying writer.
func (t *TarWriter) Finish() error {
	if t.finished {
		return newError(ErrWrite, "finish", "", errFinished)
	}
	if t.inEntry {
		return newError(ErrWrite, "finish", t.curPath, errEntryOpen)
	}
	t.finished = true
	if err := t.tw.Close(); err != nil {
		return newError(ErrWrite, "finish", "", err)
	}
	return nil
}
