package object

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxHeaderLen bounds the "type len\0" envelope prefix read by Open.
const maxHeaderLen = 64

// ErrSizeMismatch is returned when an object's content does not match the
// length recorded in its envelope.
var ErrSizeMismatch = errors.New("object size mismatch")

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if len(h) < 3 {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. The on-disk format
// is "type len\0content". Writes are atomic: data is written to a temp
// file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	raw := append(objectHeader(objType, int64(len(data))), data...)

	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	objType, size, rc, err := s.Open(h)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	content := make([]byte, size)
	if _, err := io.ReadFull(rc, content); err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	// Drain so trailing bytes past the declared length are reported.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return objType, content, nil
}

// Open returns a sequential reader over an object's content together with
// its type and the exact content length recorded in the envelope. The
// reader fails with ErrSizeMismatch (wrapping io.ErrUnexpectedEOF when the
// file is short) if the stored content disagrees with that length.
func (s *Store) Open(h Hash) (ObjectType, int64, io.ReadCloser, error) {
	if !IsFullHash(string(h)) {
		return "", 0, nil, fmt.Errorf("object open %q: %w", h, os.ErrNotExist)
	}
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		return "", 0, nil, fmt.Errorf("object open %s: %w", h, err)
	}

	br := bufio.NewReader(f)
	objType, size, err := readEnvelopeHeader(br)
	if err != nil {
		f.Close()
		return "", 0, nil, fmt.Errorf("object open %s: %w", h, err)
	}

	return objType, size, &objectReader{
		hash:      h,
		r:         br,
		remaining: size,
		f:         f,
	}, nil
}

func readEnvelopeHeader(br *bufio.Reader) (ObjectType, int64, error) {
	var header []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", 0, fmt.Errorf("invalid format (no NUL)")
			}
			return "", 0, err
		}
		if b == 0 {
			break
		}
		header = append(header, b)
		if len(header) > maxHeaderLen {
			return "", 0, fmt.Errorf("invalid format (header too long)")
		}
	}

	typ, lenStr, ok := strings.Cut(string(header), " ")
	if !ok {
		return "", 0, fmt.Errorf("invalid header %q", header)
	}
	length, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil || length < 0 {
		return "", 0, fmt.Errorf("invalid length %q", lenStr)
	}
	return ObjectType(typ), length, nil
}

// objectReader yields exactly the declared number of content bytes and
// checks that the file ends where the envelope says it does.
type objectReader struct {
	hash      Hash
	r         *bufio.Reader
	remaining int64
	f         *os.File
	checked   bool
}

func (o *objectReader) Read(p []byte) (int, error) {
	if o.remaining <= 0 {
		if !o.checked {
			o.checked = true
			if _, err := o.r.ReadByte(); err != io.EOF {
				return 0, fmt.Errorf("object %s: trailing data: %w", o.hash, ErrSizeMismatch)
			}
		}
		return 0, io.EOF
	}
	if int64(len(p)) > o.remaining {
		p = p[:o.remaining]
	}
	n, err := o.r.Read(p)
	o.remaining -= int64(n)
	if err == io.EOF && o.remaining > 0 {
		return n, fmt.Errorf("object %s: %w: %w", o.hash, ErrSizeMismatch, io.ErrUnexpectedEOF)
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (o *objectReader) Close() error {
	return o.f.Close()
}

// OpenBlob opens a blob for streaming. It fails if h names an object of any
// other type.
func (s *Store) OpenBlob(h Hash) (int64, io.ReadCloser, error) {
	objType, size, rc, err := s.Open(h)
	if err != nil {
		return 0, nil, err
	}
	if objType != TypeBlob {
		rc.Close()
		return 0, nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeBlob)
	}
	return size, rc, nil
}

// TypeOf returns the type recorded in an object's envelope without reading
// its content.
func (s *Store) TypeOf(h Hash) (ObjectType, error) {
	objType, _, rc, err := s.Open(h)
	if err != nil {
		return "", err
	}
	rc.Close()
	return objType, nil
}

// FindPrefix returns all stored hashes that start with prefix, sorted. The
// prefix must be at least two hex characters long so the fan-out directory
// is known.
func (s *Store) FindPrefix(prefix string) ([]Hash, error) {
	if len(prefix) < 2 || !IsHexPrefix(prefix) {
		return nil, fmt.Errorf("find prefix %q: invalid hash prefix", prefix)
	}
	dir := filepath.Join(s.root, "objects", prefix[:2])
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find prefix %q: %w", prefix, err)
	}

	var out []Hash
	for _, de := range names {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		full := prefix[:2] + de.Name()
		if strings.HasPrefix(full, prefix) && IsFullHash(full) {
			out = append(out, Hash(full))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, b.Data)
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return &Blob{Data: data}, nil
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores a TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes a TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	return UnmarshalTag(data)
}

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}
