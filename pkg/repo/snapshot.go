package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// SnapshotOptions controls how a directory is recorded as a commit.
type SnapshotOptions struct {
	Author  string
	Message string
	// When is the authoring time. Zero means now.
	When   time.Time
	Signer CommitSigner
}

// Snapshot records the directory tree rooted at dir as a new commit on the
// current branch (or detached HEAD) and returns the commit hash.
//
// Regular files keep their executable bit, symlinks are stored with their
// target text as blob content, and empty directories are omitted. A
// subdirectory that is itself a got repository is recorded as a gitlink to
// that repository's HEAD commit; its files are not copied.
func (r *Repo) Snapshot(dir string, opts SnapshotOptions) (object.Hash, error) {
	treeHash, err := r.snapshotDir(dir, "")
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if treeHash == "" {
		if treeHash, err = r.Store.WriteTree(&object.TreeObj{}); err != nil {
			return "", fmt.Errorf("snapshot: write empty tree: %w", err)
		}
	}

	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}

	when := opts.When
	if when.IsZero() {
		when = time.Now()
	}
	author := strings.TrimSpace(opts.Author)
	if author == "" {
		author = "unknown"
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: when.Unix(),
		Message:   opts.Message,
	}
	if opts.Signer != nil {
		signature, err := opts.Signer(object.CommitSigningPayload(commitObj))
		if err != nil {
			return "", fmt.Errorf("snapshot: sign commit: %w", err)
		}
		commitObj.Signature = signature
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("snapshot: write commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("snapshot: read HEAD: %w", err)
	}
	ref := "HEAD"
	if strings.HasPrefix(head, "refs/") {
		ref = head
	}
	if parentHash == "" {
		err = r.UpdateRefCAS(ref, commitHash)
	} else {
		err = r.UpdateRefCAS(ref, commitHash, parentHash)
	}
	if err != nil {
		return "", fmt.Errorf("snapshot: update ref %q: %w", ref, err)
	}
	return commitHash, nil
}

// snapshotDir writes the tree for dir and returns its hash, or "" when the
// directory holds nothing worth recording.
func (r *Repo) snapshotDir(dir, relPrefix string) (object.Hash, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %q: %w", relPrefix, err)
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	var entries []object.TreeEntry
	for _, de := range dirents {
		name := de.Name()
		if name == ".got" {
			continue
		}
		full := filepath.Join(dir, name)
		rel := name
		if relPrefix != "" {
			rel = relPrefix + "/" + name
		}

		info, err := os.Lstat(full)
		if err != nil {
			return "", fmt.Errorf("stat %q: %w", rel, err)
		}
		mode, ok := modeFromFileInfo(info)
		if !ok {
			continue
		}

		var h object.Hash
		switch mode {
		case object.TreeModeDir:
			linked, isRepo, err := nestedRepoHead(full)
			if err != nil {
				return "", fmt.Errorf("nested repository %q: %w", rel, err)
			}
			if isRepo {
				if linked == "" {
					continue
				}
				mode, h = object.TreeModeGitlink, linked
				break
			}
			if h, err = r.snapshotDir(full, rel); err != nil {
				return "", err
			}
			if h == "" {
				continue
			}
		case object.TreeModeSymlink:
			target, err := os.Readlink(full)
			if err != nil {
				return "", fmt.Errorf("readlink %q: %w", rel, err)
			}
			if h, err = r.Store.WriteBlob(&object.Blob{Data: []byte(filepath.ToSlash(target))}); err != nil {
				return "", fmt.Errorf("write symlink %q: %w", rel, err)
			}
		default:
			data, err := os.ReadFile(full)
			if err != nil {
				return "", fmt.Errorf("read %q: %w", rel, err)
			}
			if h, err = r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
				return "", fmt.Errorf("write blob %q: %w", rel, err)
			}
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: mode, Hash: h})
	}

	if len(entries) == 0 {
		return "", nil
	}
	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree %q: %w", relPrefix, err)
	}
	return h, nil
}

// nestedRepoHead reports whether dir is a got repository and, if so, its
// HEAD commit. The hash is empty for a repository without commits, which
// the caller skips entirely.
func nestedRepoHead(dir string) (object.Hash, bool, error) {
	gotDir := filepath.Join(dir, ".got")
	info, err := os.Stat(gotDir)
	if err != nil || !info.IsDir() {
		return "", false, nil
	}
	nested := &Repo{RootDir: dir, GotDir: gotDir, Store: object.NewStore(gotDir)}
	h, err := nested.ResolveRef("HEAD")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", true, nil
		}
		return "", true, err
	}
	return h, true, nil
}
