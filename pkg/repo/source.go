package repo

import (
	"io"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// ReadTree reads a tree object from the repository store.
func (r *Repo) ReadTree(h object.Hash) (*object.TreeObj, error) {
	return r.Store.ReadTree(h)
}

// OpenBlob opens a blob for streaming and reports its exact size.
func (r *Repo) OpenBlob(h object.Hash) (int64, io.ReadCloser, error) {
	return r.Store.OpenBlob(h)
}

// BlobSize reports a blob's length from its envelope without reading the
// content.
func (r *Repo) BlobSize(h object.Hash) (int64, error) {
	size, rc, err := r.Store.OpenBlob(h)
	if err != nil {
		return 0, err
	}
	rc.Close()
	return size, nil
}
