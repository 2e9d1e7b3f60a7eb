package archive

import (
	"io"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// Source is the read-only view of an object store an export needs.
// *repo.Repo implements it. Implementations must be safe for the single
// goroutine running an export; concurrent exports may share a Source only
// if it tolerates concurrent reads.
type Source interface {
	// ResolveCommit maps a revision (empty means HEAD) to a commit.
	ResolveCommit(revision string) (object.Hash, *object.CommitObj, error)
	ReadTree(h object.Hash) (*object.TreeObj, error)
	// OpenBlob returns the blob's exact size and a stream over its content.
	OpenBlob(h object.Hash) (int64, io.ReadCloser, error)
}
