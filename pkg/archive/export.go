package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/gotarchive/pkg/object"
)

// Options selects what an export writes.
type Options struct {
	// Revision names the commit to export. Empty means HEAD.
	Revision string
	// BasePath restricts the export to one subtree or file. Entry paths
	// stay relative to the tree root.
	BasePath string
	Format   Format
	// Prefix is prepended verbatim to every entry path, so "proj-1.0/"
	// puts the whole tree under one top-level directory.
	Prefix string
	// Level is the codec level, or the deflate level for zip. DefaultLevel
	// keeps each compressor's default.
	Level int
}

// CommitCheck inspects a resolved commit before anything is written.
// Returning an error aborts the export as a resolution failure.
type CommitCheck func(h object.Hash, c *object.CommitObj) error

// Exporter streams a commit's tree into an archive.
//
// Logger receives one record per export: a debug summary on success or an
// error with the failing path on failure. It defaults to a discarding
// logger.
type Exporter struct {
	Source  Source
	Logger  logrus.FieldLogger
	Comment string
	Check   CommitCheck
}

var discardLogger = sync.OnceValue(func() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
})

func (e *Exporter) logger() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	return discardLogger()
}

// Export writes the archive described by opts to sink and closes sink
// exactly once, whatever the outcome.
//
// The output pipeline is container writer, then codec, then sink. On success
// each layer is finished innermost first. On failure the codec and sink are
// closed in that order, teardown errors are combined with the cause, and the
// returned error wraps one of ErrResolution, ErrCodecInit, ErrWrite, ErrRead
// or ErrCanceled. Resolution failures leave sink without a single byte.
func (e *Exporter) Export(ctx context.Context, opts Options, sink io.WriteCloser) error {
	x := &exportRun{
		ex:   e,
		opts: opts,
		sink: &countingWriter{w: sink},
		log: e.logger().WithFields(logrus.Fields{
			"revision":  opts.Revision,
			"format":    opts.Format.String(),
			"base_path": opts.BasePath,
		}),
	}
	return x.run(ctx, sink)
}

type exportRun struct {
	ex      *Exporter
	opts    Options
	sink    *countingWriter
	log     logrus.FieldLogger
	entries int
	path    string
}

func (x *exportRun) run(ctx context.Context, sink io.Closer) error {
	if err := ctx.Err(); err != nil {
		return x.abort(newError(ErrCanceled, "export", "", err), sink)
	}
	if x.ex.Source == nil {
		return x.abort(newError(ErrResolution, "export", "", errors.New("no source")), sink)
	}
	if _, known := formats[x.opts.Format]; !known {
		return x.abort(newError(ErrCodecInit, "export", "", fmt.Errorf("unknown format %s", x.opts.Format)), sink)
	}
	prefix, err := cleanPrefix(x.opts.Prefix)
	if err != nil {
		return x.abort(newError(ErrResolution, "prefix", x.opts.Prefix, err), sink)
	}

	commitHash, commit, err := x.ex.Source.ResolveCommit(x.opts.Revision)
	if err != nil {
		return x.abort(newError(ErrResolution, "resolve revision", "", fmt.Errorf("%q: %w", x.opts.Revision, err)), sink)
	}
	x.log = x.log.WithField("commit", string(commitHash))
	if x.ex.Check != nil {
		if err := x.ex.Check(commitHash, commit); err != nil {
			return x.abort(newError(ErrResolution, "check commit", "", err), sink)
		}
	}

	tree, err := NewTreeSource(x.ex.Source, commit, x.opts.BasePath)
	if err != nil {
		return x.abort(err, sink)
	}

	codec := x.opts.Format.Codec()
	codecLevel, zipLevel := x.opts.Level, DefaultLevel
	if x.opts.Format == FormatZip {
		codecLevel, zipLevel = DefaultLevel, x.opts.Level
	}
	cw, err := Wrap(x.sink, codec, codecLevel)
	if err != nil {
		return x.abort(err, sink)
	}
	w, err := NewWriter(cw, x.opts.Format, x.ex.Comment, zipLevel)
	if err != nil {
		return x.abort(err, cw, sink)
	}

	content := NewContentReader(x.ex.Source)
	modTime := time.Unix(commit.Timestamp, 0).UTC()
	for {
		if err := ctx.Err(); err != nil {
			return x.abort(newError(ErrCanceled, "export", x.path, err), cw, sink)
		}
		entry, err := tree.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return x.abort(err, cw, sink)
		}
		x.path = entry.Path

		meta := EntryMeta{
			Path:    prefix + entry.Path,
			Mode:    entry.Kind.FileMode(),
			ModTime: modTime,
			Comment: string(commitHash),
		}
		if err := x.writeEntry(w, content, entry, meta); err != nil {
			return x.abort(err, cw, sink)
		}
		x.entries++
	}
	x.path = ""

	if err := w.Finish(); err != nil {
		return x.abort(err, cw, sink)
	}
	if err := cw.Close(); err != nil {
		return x.abort(newError(ErrWrite, "close "+codec.String(), "", err), sink)
	}
	if err := sink.Close(); err != nil {
		return x.abort(newError(ErrWrite, "close sink", "", err))
	}

	x.log.WithFields(logrus.Fields{
		"entries": x.entries,
		"bytes":   x.sink.n,
	}).Debug("archive exported")
	return nil
}

func (x *exportRun) writeEntry(w Writer, content *ContentReader, entry Entry, meta EntryMeta) error {
	if entry.Kind == KindSymlink {
		target, err := content.ReadSymlinkTarget(entry.Path, entry.ID)
		if err != nil {
			return err
		}
		meta.SymlinkTarget = target
		meta.Size = int64(len(target))
		if _, err := w.Begin(meta); err != nil {
			return err
		}
		return w.End()
	}

	size, rc, err := content.Open(entry.Path, entry.ID)
	if err != nil {
		return err
	}
	defer rc.Close()

	meta.Size = size
	body, err := w.Begin(meta)
	if err != nil {
		return err
	}
	if _, err := io.Copy(body, rc); err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			return ae
		}
		return newError(ErrWrite, "write body", entry.Path, err)
	}
	return w.End()
}

// abort closes the given layers in order, logs the failure once, and
// returns cause combined with any teardown errors.
func (x *exportRun) abort(cause error, layers ...io.Closer) error {
	var teardown *multierror.Error
	for _, c := range layers {
		if err := c.Close(); err != nil {
			teardown = multierror.Append(teardown, err)
		}
	}

	log := x.log.WithFields(logrus.Fields{
		"entries": x.entries,
		"bytes":   x.sink.n,
	})
	if x.path != "" {
		log = log.WithField("path", x.path)
	}
	if teardown != nil {
		log = log.WithField("teardown", teardown.Error())
	}
	log.WithError(cause).Error("archive export failed")

	if teardown == nil {
		return cause
	}
	return multierror.Append(cause, teardown.Errors...)
}

// cleanPrefix strips leading slashes and rejects prefixes that would place
// entries outside the extraction directory.
func cleanPrefix(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if strings.ContainsRune(p, 0) {
		return "", errors.New("prefix contains NUL")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("prefix %q escapes the archive root", p)
		}
	}
	return p, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
