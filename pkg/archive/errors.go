package archive

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by an export wraps exactly one of
// these; test with errors.Is.
var (
	// ErrResolution means the revision, commit, or base path could not be
	// resolved. No archive bytes are written.
	ErrResolution = errors.New("resolution failure")
	// ErrCodecInit means the compression layer could not be constructed.
	// No container bytes are written.
	ErrCodecInit = errors.New("codec init failure")
	// ErrWrite covers every failure writing headers, bodies, trailers, or
	// closing the output pipeline.
	ErrWrite = errors.New("write failure")
	// ErrRead covers failures reading blob content or symlink targets.
	ErrRead = errors.New("read failure")
	// ErrCanceled means the export's context was done before it finished.
	ErrCanceled = errors.New("export canceled")
)

// Error describes a failed export step. Path is the tree path being
// processed when the failure happened, empty for archive-level steps.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e != nil && target == e.Kind
}

func newError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// OK reports whether an export result represents a fully written archive.
func OK(err error) bool {
	return err == nil
}
