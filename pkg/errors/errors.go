// Package errors defines the sentinel errors shared by the pipeline stages and
// classifies them as fatal or recoverable.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoContent    = errors.New("no usable content")
	ErrOpenInput    = errors.New("cannot open input")
	ErrTempDir      = errors.New("temporary directory unavailable")
	ErrSpillWrite   = errors.New("spill write failed")
	ErrCorruptSpill = errors.New("corrupt spill file")
	ErrOutput       = errors.New("report output failed")
	ErrConfig       = errors.New("invalid configuration")
	ErrExport       = errors.New("export failed")
)

// StageError attaches the pipeline stage and the offending path to an error.
type StageError struct {
	Err   error
	Stage string
	Path  string
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s", e.Stage, e.Path, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// New wraps err with stage and path context.
func New(err error, stage string, path string) *StageError {
	return &StageError{
		Err:   err,
		Stage: stage,
		Path:  path,
	}
}

// IsFatal reports whether err must abort the run. Per-file and per-spill-read
// conditions are recoverable; everything touching the temporary directory,
// spill integrity, or the report file is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNoContent), errors.Is(err, ErrOpenInput), errors.Is(err, ErrExport):
		return false
	default:
		return true
	}
}
