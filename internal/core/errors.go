package core

import "fmt"

// ErrorKind classifies per-file failures so the report can name what went
// wrong without string matching.
type ErrorKind string

const (
	ErrDiscovery  ErrorKind = "discovery"
	ErrValidation ErrorKind = "validation"
	ErrBackup     ErrorKind = "backup"
	ErrMutation   ErrorKind = "mutation"
	ErrParse      ErrorKind = "parse"
)

// FileError is a per-file failure. It never aborts the run; the orchestrator
// collects these and the process exit code reflects whether any occurred.
type FileError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// NewFileError wraps err with its path and kind.
func NewFileError(path string, kind ErrorKind, err error) FileError {
	return FileError{Path: path, Kind: kind, Err: err}
}
