package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/gotarchive/pkg/object"
)

var (
	// ErrRevisionNotFound is returned when a revision does not name a commit
	// in the repository.
	ErrRevisionNotFound = errors.New("revision not found")
	// ErrAmbiguousRevision is returned when a short hash matches more than
	// one commit or tag.
	ErrAmbiguousRevision = errors.New("ambiguous revision")
)

const (
	minShortHashLen = 4
	maxTagPeelDepth = 8
)

// ResolveRevision resolves rev to a commit hash. An empty revision means
// HEAD. Candidates are tried in order: HEAD and refs/ paths, branches, tags,
// full hashes, then unique hash prefixes of at least four characters.
// Annotated tags are peeled to the commit they point at.
func (r *Repo) ResolveRevision(rev string) (object.Hash, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		rev = "HEAD"
	}

	h, err := r.lookupRevision(rev)
	if err != nil {
		return "", err
	}
	return r.peelToCommit(rev, h)
}

// ResolveCommit resolves rev and reads the commit it names.
func (r *Repo) ResolveCommit(rev string) (object.Hash, *object.CommitObj, error) {
	h, err := r.ResolveRevision(rev)
	if err != nil {
		return "", nil, err
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return "", nil, fmt.Errorf("resolve %q: read commit %s: %w", rev, h, err)
	}
	return h, c, nil
}

func (r *Repo) lookupRevision(rev string) (object.Hash, error) {
	if h, err := r.ResolveRef(rev); err == nil {
		return h, nil
	}
	if !strings.HasPrefix(rev, "refs/") && rev != "HEAD" {
		if h, err := r.ResolveRef("refs/tags/" + rev); err == nil {
			return h, nil
		}
	}

	if object.IsFullHash(rev) {
		if r.Store.Has(object.Hash(rev)) {
			return object.Hash(rev), nil
		}
		return "", fmt.Errorf("resolve %q: %w", rev, ErrRevisionNotFound)
	}

	if len(rev) >= minShortHashLen && object.IsHexPrefix(rev) {
		matches, err := r.Store.FindPrefix(rev)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", rev, err)
		}
		var candidates []object.Hash
		for _, m := range matches {
			typ, err := r.Store.TypeOf(m)
			if err != nil {
				continue
			}
			if typ == object.TypeCommit || typ == object.TypeTag {
				candidates = append(candidates, m)
			}
		}
		switch len(candidates) {
		case 1:
			return candidates[0], nil
		case 0:
		default:
			return "", fmt.Errorf("resolve %q: %w (%d candidates)", rev, ErrAmbiguousRevision, len(candidates))
		}
	}

	return "", fmt.Errorf("resolve %q: %w", rev, ErrRevisionNotFound)
}

func (r *Repo) peelToCommit(rev string, h object.Hash) (object.Hash, error) {
	for depth := 0; depth <= maxTagPeelDepth; depth++ {
		typ, err := r.Store.TypeOf(h)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w: %w", rev, ErrRevisionNotFound, err)
		}
		switch typ {
		case object.TypeCommit:
			return h, nil
		case object.TypeTag:
			tag, err := r.Store.ReadTag(h)
			if err != nil {
				return "", fmt.Errorf("resolve %q: read tag %s: %w", rev, h, err)
			}
			h = tag.TargetHash
		default:
			return "", fmt.Errorf("resolve %q: %w: %s is a %s, not a commit", rev, ErrRevisionNotFound, h, typ)
		}
	}
	return "", fmt.Errorf("resolve %q: %w: tag chain deeper than %d", rev, ErrRevisionNotFound, maxTagPeelDepth)
}
