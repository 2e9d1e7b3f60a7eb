package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// MaxSymlinkTargetSize caps how much of a symlink blob is buffered. Real
// link targets are bounded by PATH_MAX; anything larger is treated as a
// corrupt store.
const MaxSymlinkTargetSize = 64 << 10

// ContentReader opens blob content for streaming into archive entries.
type ContentReader struct {
	src Source
}

// NewContentReader returns a ContentReader over src.
func NewContentReader(src Source) *ContentReader {
	return &ContentReader{src: src}
}

// Open returns the exact size of the blob and a sequential stream over it.
// Read errors from the stream wrap ErrRead and name path.
func (c *ContentReader) Open(path string, id object.Hash) (int64, io.ReadCloser, error) {
	size, rc, err := c.src.OpenBlob(id)
	if err != nil {
		return 0, nil, newError(ErrRead, "open blob", path, err)
	}
	return size, &contentStream{rc: rc, path: path, remaining: size}, nil
}

// ReadSymlinkTarget reads a symlink blob fully and returns the target text.
func (c *ContentReader) ReadSymlinkTarget(path string, id object.Hash) (string, error) {
	size, rc, err := c.Open(path, id)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if size > MaxSymlinkTargetSize {
		return "", newError(ErrRead, "read symlink", path,
			fmt.Errorf("target is %d bytes, limit %d", size, MaxSymlinkTargetSize))
	}
	target := make([]byte, size)
	if _, err := io.ReadFull(rc, target); err != nil {
		return "", asReadError("read symlink", path, err)
	}
	return string(target), nil
}

// contentStream tags read failures so callers copying into a writer can
// tell them apart from write failures. A stream that ends before the
// reported size is a read failure.
type contentStream struct {
	rc        io.ReadCloser
	path      string
	remaining int64
}

func (s *contentStream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.remaining -= int64(n)
	if s.remaining < 0 {
		n += int(s.remaining)
		s.remaining = 0
		return n, newError(ErrRead, "read blob", s.path, errors.New("blob longer than its reported size"))
	}
	if err == io.EOF && s.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	if err != nil && err != io.EOF {
		return n, asReadError("read blob", s.path, err)
	}
	return n, err
}

func (s *contentStream) Close() error {
	return s.rc.Close()
}

func asReadError(op, path string, err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return newError(ErrRead, op, path, err)
}
