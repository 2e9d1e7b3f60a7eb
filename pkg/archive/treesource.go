package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"strings"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// Kind classifies a tree entry.
type Kind int

const (
	KindFile Kind = iota
	KindExecutable
	KindSymlink
	KindDirectory
	KindSubmodule
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindExecutable:
		return "executable"
	case KindSymlink:
		return "symlink"
	case KindDirectory:
		return "directory"
	case KindSubmodule:
		return "submodule"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FileMode returns the mode an archive entry of this kind carries.
func (k Kind) FileMode() fs.FileMode {
	switch k {
	case KindExecutable:
		return 0o755
	case KindSymlink:
		return fs.ModeSymlink | 0o777
	case KindDirectory:
		return fs.ModeDir | 0o755
	default:
		return 0o644
	}
}

func kindFromMode(mode string) (Kind, error) {
	switch mode {
	case object.TreeModeFile:
		return KindFile, nil
	case object.TreeModeExecutable:
		return KindExecutable, nil
	case object.TreeModeSymlink:
		return KindSymlink, nil
	case object.TreeModeDir:
		return KindDirectory, nil
	case object.TreeModeGitlink:
		return KindSubmodule, nil
	default:
		return 0, fmt.Errorf("unknown tree mode %q", mode)
	}
}

// Entry is a leaf of the exported tree. Path is slash separated and
// relative to the tree root, even when a base path filter is in effect.
type Entry struct {
	Path string
	Kind Kind
	ID   object.Hash
	// Size is the blob length, or -1 when the source cannot report it
	// without opening the blob.
	Size int64
}

// BlobSizer is implemented by sources that can report a blob's size
// without streaming it. TreeSource fills Entry.Size when available.
type BlobSizer interface {
	BlobSize(h object.Hash) (int64, error)
}

type treeFrame struct {
	prefix  string
	entries []object.TreeEntry
	next    int
}

// TreeSource walks the leaves of a commit's tree depth-first, in stored
// tree order, expanding subtrees where they appear. Directories and
// submodule links are consumed internally and never yielded. The walk uses
// an explicit stack, so nesting depth is bounded only by memory.
//
// A TreeSource is a single forward pass; it cannot be restarted.
type TreeSource struct {
	src    Source
	sizer  BlobSizer
	stack  []treeFrame
	single *Entry
	err    error
}

// NewTreeSource prepares a walk of commit's tree restricted to basePath. An
// empty basePath selects the whole tree. basePath matches whole path
// components: "sub/dir" selects "sub/dir" itself when it is a file, and
// everything beneath it when it is a directory, but never "sub/dirx". A base
// path that does not exist yields an empty walk.
//
// An invalid base path fails with ErrResolution; an unreadable tree on the
// way to it fails with ErrRead.
func NewTreeSource(src Source, commit *object.CommitObj, basePath string) (*TreeSource, error) {
	base, err := CleanBasePath(basePath)
	if err != nil {
		return nil, newError(ErrResolution, "base path", basePath, err)
	}

	ts := &TreeSource{src: src}
	ts.sizer, _ = src.(BlobSizer)

	root, err := src.ReadTree(commit.TreeHash)
	if err != nil {
		return nil, newError(ErrRead, "read tree", "", err)
	}
	if base == "" {
		ts.stack = append(ts.stack, treeFrame{entries: root.Entries})
		return ts, nil
	}

	parts := strings.Split(base, "/")
	cur := root
	for i, part := range parts {
		te, found := findTreeEntry(cur, part)
		if !found {
			return ts, nil
		}
		prefix := strings.Join(parts[:i+1], "/")
		last := i == len(parts)-1

		if te.IsDir() {
			sub, err := src.ReadTree(te.Hash)
			if err != nil {
				return nil, newError(ErrRead, "read tree", prefix, err)
			}
			if last {
				ts.stack = append(ts.stack, treeFrame{prefix: prefix, entries: sub.Entries})
				return ts, nil
			}
			cur = sub
			continue
		}
		if !last || te.IsGitlink() {
			return ts, nil
		}
		kind, err := kindFromMode(te.Mode)
		if err != nil {
			return nil, newError(ErrRead, "walk tree", prefix, err)
		}
		e, err := ts.leaf(prefix, kind, te.Hash)
		if err != nil {
			return nil, err
		}
		ts.single = &e
	}
	return ts, nil
}

// CleanBasePath normalizes a base path filter. Leading and trailing slashes
// are dropped, "." means the whole tree, and ".." components are rejected.
func CleanBasePath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", nil
	}
	if strings.ContainsRune(p, 0) {
		return "", errors.New("path contains NUL")
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q escapes the tree root", p)
		}
	}
	return cleaned, nil
}

// Next returns the next leaf, or io.EOF once the walk is complete. After
// any other error the walk is over and Next keeps returning that error.
func (t *TreeSource) Next() (Entry, error) {
	if t.err != nil {
		return Entry{}, t.err
	}
	if t.single != nil {
		e := *t.single
		t.single = nil
		return e, nil
	}

	for len(t.stack) > 0 {
		top := &t.stack[len(t.stack)-1]
		if top.next >= len(top.entries) {
			t.stack = t.stack[:len(t.stack)-1]
			continue
		}
		te := top.entries[top.next]
		top.next++
		p := te.Name
		if top.prefix != "" {
			p = top.prefix + "/" + te.Name
		}

		kind, err := kindFromMode(te.Mode)
		if err != nil {
			return t.fail(newError(ErrRead, "walk tree", p, err))
		}
		switch kind {
		case KindSubmodule:
			continue
		case KindDirectory:
			sub, err := t.src.ReadTree(te.Hash)
			if err != nil {
				return t.fail(newError(ErrRead, "read tree", p, err))
			}
			t.stack = append(t.stack, treeFrame{prefix: p, entries: sub.Entries})
			continue
		}

		e, err := t.leaf(p, kind, te.Hash)
		if err != nil {
			return t.fail(err)
		}
		return e, nil
	}

	t.err = io.EOF
	return Entry{}, io.EOF
}

// All adapts Next to a range-over-func iterator. Iteration stops after the
// first error, which is yielded with a zero Entry.
func (t *TreeSource) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for {
			e, err := t.Next()
			if err == io.EOF {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func (t *TreeSource) leaf(p string, kind Kind, id object.Hash) (Entry, error) {
	e := Entry{Path: p, Kind: kind, ID: id, Size: -1}
	if t.sizer != nil {
		size, err := t.sizer.BlobSize(id)
		if err != nil {
			return Entry{}, newError(ErrRead, "stat blob", p, err)
		}
		e.Size = size
	}
	return e, nil
}

func (t *TreeSource) fail(err error) (Entry, error) {
	t.err = err
	t.stack = nil
	return Entry{}, err
}

func findTreeEntry(tr *object.TreeObj, name string) (object.TreeEntry, bool) {
	for _, te := range tr.Entries {
		if te.Name == name {
			return te, true
		}
	}
	return object.TreeEntry{}, false
}
