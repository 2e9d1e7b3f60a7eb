package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// EntryMeta describes one archive entry. Mode carries permission bits plus
// fs.ModeSymlink for links; ModTime is shared by every entry of an export.
type EntryMeta struct {
	Path          string
	Mode          fs.FileMode
	ModTime       time.Time
	Size          int64
	SymlinkTarget string
	Comment       string
}

// IsSymlink reports whether the entry is a symbolic link.
func (m EntryMeta) IsSymlink() bool { return m.Mode&fs.ModeSymlink != 0 }

// Writer emits archive entries one at a time into a container format.
//
// Begin writes the entry header and returns a writer for the body. Regular
// entries must receive exactly Size body bytes before End. Symlink entries
// are complete after Begin: the writer encodes SymlinkTarget itself and the
// returned body writer accepts no bytes. Finish writes the container trailer
// once, after the last End. It does not close the underlying writer.
//
// Every failure wraps ErrWrite. Writers never retry.
type Writer interface {
	Begin(meta EntryMeta) (io.Writer, error)
	End() error
	Finish() error
}

// NewWriter returns the container writer for f. Codec compression is not
// applied here; tar formats expect w to already be the codec layer. comment
// and level only affect zip, where level is the deflate level.
func NewWriter(w io.Writer, f Format, comment string, level int) (Writer, error) {
	switch {
	case f == FormatZip:
		zw, err := NewZipWriter(w, comment, level)
		if err != nil {
			return nil, err
		}
		return zw, nil
	case f.IsTar():
		return NewTarWriter(w), nil
	default:
		return nil, newError(ErrWrite, "open writer", "", fmt.Errorf("unknown format %s", f))
	}
}

var (
	errEntryOpen      = errors.New("previous entry not ended")
	errNoEntry        = errors.New("no entry in progress")
	errFinished       = errors.New("archive already finished")
	errBodyTooLong    = errors.New("entry body exceeds declared size")
	errSymlinkHasBody = errors.New("symlink entries take no body")
)

// entryBody forwards exactly the declared number of bytes to the container
// and records how many arrived so End can reject short bodies.
type entryBody struct {
	w        io.Writer
	path     string
	declared int64
	written  int64
}

func (b *entryBody) Write(p []byte) (int, error) {
	room := b.declared - b.written
	if int64(len(p)) > room {
		n, err := b.w.Write(p[:room])
		b.written += int64(n)
		if err == nil {
			err = errBodyTooLong
		}
		return n, newError(ErrWrite, "write body", b.path, err)
	}
	n, err := b.w.Write(p)
	b.written += int64(n)
	if err != nil {
		return n, newError(ErrWrite, "write body", b.path, err)
	}
	return n, nil
}

func (b *entryBody) check() error {
	if b.written != b.declared {
		return newError(ErrWrite, "end entry", b.path,
			fmt.Errorf("body is %d bytes, declared %d", b.written, b.declared))
	}
	return nil
}

// closedBody is handed out for entries that take no body.
type closedBody struct {
	path string
}

func (c closedBody) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return 0, newError(ErrWrite, "write body", c.path, errSymlinkHasBody)
}
