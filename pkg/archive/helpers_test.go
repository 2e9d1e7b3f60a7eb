package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// memSource is an in-memory Source. Blobs listed in truncate are served
// with fewer bytes than their declared size.
type memSource struct {
	blobs    map[object.Hash][]byte
	trees    map[object.Hash]*object.TreeObj
	commits  map[object.Hash]*object.CommitObj
	revs     map[string]object.Hash
	truncate map[object.Hash]int
	onOpen   func(h object.Hash)
}

func newMemSource() *memSource {
	return &memSource{
		blobs:    make(map[object.Hash][]byte),
		trees:    make(map[object.Hash]*object.TreeObj),
		commits:  make(map[object.Hash]*object.CommitObj),
		revs:     make(map[string]object.Hash),
		truncate: make(map[object.Hash]int),
	}
}

func (m *memSource) ResolveCommit(rev string) (object.Hash, *object.CommitObj, error) {
	if rev == "" {
		rev = "HEAD"
	}
	h, ok := m.revs[rev]
	if !ok {
		return "", nil, fmt.Errorf("revision %q not found", rev)
	}
	return h, m.commits[h], nil
}

func (m *memSource) ReadTree(h object.Hash) (*object.TreeObj, error) {
	tr, ok := m.trees[h]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", h, fs.ErrNotExist)
	}
	return tr, nil
}

func (m *memSource) OpenBlob(h object.Hash) (int64, io.ReadCloser, error) {
	if m.onOpen != nil {
		m.onOpen(h)
	}
	data, ok := m.blobs[h]
	if !ok {
		return 0, nil, fmt.Errorf("blob %s: %w", h, fs.ErrNotExist)
	}
	size := int64(len(data))
	if n, short := m.truncate[h]; short {
		data = data[:n]
	}
	return size, io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memSource) BlobSize(h object.Hash) (int64, error) {
	data, ok := m.blobs[h]
	if !ok {
		return 0, fmt.Errorf("blob %s: %w", h, fs.ErrNotExist)
	}
	return int64(len(data)), nil
}

func (m *memSource) addBlob(data string) object.Hash {
	h := object.HashObject(object.TypeBlob, []byte(data))
	m.blobs[h] = []byte(data)
	return h
}

func (m *memSource) addTree(t *testing.T, entries ...object.TreeEntry) object.Hash {
	t.Helper()
	tr := &object.TreeObj{Entries: entries}
	data, err := object.MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	h := object.HashObject(object.TypeTree, data)
	m.trees[h] = tr
	return h
}

func (m *memSource) addCommit(tree object.Hash, ts int64, revs ...string) object.Hash {
	c := &object.CommitObj{TreeHash: tree, Author: "Test <test@example.com>", Timestamp: ts, Message: "test\n"}
	h := object.HashObject(object.TypeCommit, object.MarshalCommit(c))
	m.commits[h] = c
	for _, rev := range append(revs, "HEAD") {
		m.revs[rev] = h
	}
	return h
}

// testFile is a leaf of a tree built by buildTree. An empty mode means a
// regular file.
type testFile struct {
	path string
	mode string
	data string
}

// buildTree stores the tree described by files. Entries keep the order in
// which their names first appear.
func (m *memSource) buildTree(t *testing.T, files []testFile) object.Hash {
	t.Helper()
	var entries []object.TreeEntry
	children := make(map[string][]testFile)
	for _, f := range files {
		head, rest, nested := strings.Cut(f.path, "/")
		if !nested {
			mode := f.mode
			if mode == "" {
				mode = object.TreeModeFile
			}
			var h object.Hash
			if mode == object.TreeModeGitlink {
				h = object.HashObject(object.TypeCommit, []byte(f.path))
			} else {
				h = m.addBlob(f.data)
			}
			entries = append(entries, object.TreeEntry{Name: head, Mode: mode, Hash: h})
			continue
		}
		if _, seen := children[head]; !seen {
			entries = append(entries, object.TreeEntry{Name: head, Mode: object.TreeModeDir})
		}
		children[head] = append(children[head], testFile{path: rest, mode: f.mode, data: f.data})
	}
	for i := range entries {
		if entries[i].Mode == object.TreeModeDir {
			entries[i].Hash = m.buildTree(t, children[entries[i].Name])
		}
	}
	return m.addTree(t, entries...)
}

// plainSource hides memSource's BlobSize.
type plainSource struct {
	Source
}

// scenarioFiles is the three-entry tree used across export tests.
var scenarioFiles = []testFile{
	{path: "a.txt", data: "hello\n"},
	{path: "bin/tool", mode: object.TreeModeExecutable, data: "#!/bin/sh\n"},
	{path: "link", mode: object.TreeModeSymlink, data: "a.txt"},
}

const scenarioTime = 1700000000

func newScenarioSource(t *testing.T) (*memSource, object.Hash) {
	t.Helper()
	src := newMemSource()
	tree := src.buildTree(t, scenarioFiles)
	return src, src.addCommit(tree, scenarioTime, "main")
}

type memSink struct {
	bytes.Buffer
	closes int
}

func (s *memSink) Close() error {
	s.closes++
	return nil
}

var errSinkFull = errors.New("sink full")

// failingSink accepts limit bytes and then fails every write.
type failingSink struct {
	limit   int
	written int
	closes  int
}

func (s *failingSink) Write(p []byte) (int, error) {
	if s.written+len(p) > s.limit {
		n := s.limit - s.written
		s.written += n
		return n, errSinkFull
	}
	s.written += len(p)
	return len(p), nil
}

func (s *failingSink) Close() error {
	s.closes++
	return nil
}

type extracted struct {
	name    string
	mode    fs.FileMode
	modTime time.Time
	link    string
	data    string
	comment string
}

// extract decodes an archive of format f into its entries, in order.
func extract(t *testing.T, f Format, data []byte) []extracted {
	t.Helper()
	if f == FormatZip {
		return extractZip(t, data)
	}
	r, err := decompress(f.Codec(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decompress %s: %v", f, err)
	}
	return extractTar(t, r)
}

func decompress(c Codec, r io.Reader) (io.Reader, error) {
	switch c {
	case CodecNone:
		return r, nil
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecXz:
		return xz.NewReader(r)
	case CodecBzip2:
		return bzip2.NewReader(r, nil)
	case CodecZstd:
		return zstd.NewReader(r)
	case CodecLz4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("no reader for %s", c)
	}
}

func extractTar(t *testing.T, r io.Reader) []extracted {
	t.Helper()
	var out []extracted
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("tar Next: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar read %s: %v", hdr.Name, err)
		}
		out = append(out, extracted{
			name:    hdr.Name,
			mode:    hdr.FileInfo().Mode(),
			modTime: hdr.ModTime,
			link:    hdr.Linkname,
			data:    string(body),
		})
	}
}

func extractZip(t *testing.T, data []byte) []extracted {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	var out []extracted
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("zip open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("zip read %s: %v", f.Name, err)
		}
		e := extracted{
			name:    f.Name,
			mode:    f.Mode(),
			modTime: f.Modified,
			data:    string(body),
			comment: f.Comment,
		}
		if e.mode&fs.ModeSymlink != 0 {
			e.link = e.data
		}
		out = append(out, e)
	}
	return out
}

func entryNames(entries []extracted) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// noise returns n bytes of poorly compressible text.
func noise(n int) string {
	var b strings.Builder
	h := object.HashBytes([]byte("seed"))
	for b.Len() < n {
		h = object.HashBytes([]byte(h))
		b.WriteString(string(h))
	}
	return b.String()[:n]
}

var allFormats = []Format{
	FormatZip, FormatTar, FormatTarGzip, FormatTarXz, FormatTarBzip2, FormatTarZstd, FormatTarLz4,
}
