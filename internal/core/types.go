// Package core holds the shared model types passed between discovery,
// backup, cleaning and reporting.
package core

import "fmt"

// FileKind classifies a candidate file by its on-disk format.
type FileKind string

const (
	KindSQLite FileKind = "sqlite"
	KindJSON   FileKind = "json"
)

// CandidateFile is a single discovered target: an editor state database or a
// JSON configuration file. It is read-only until the orchestrator selects it
// for mutation.
type CandidateFile struct {
	Path string
	Kind FileKind
}

func (f CandidateFile) String() string {
	return fmt.Sprintf("%s (%s)", f.Path, f.Kind)
}

// Mode selects between a read-only scan and a real mutation pass.
type Mode string

const (
	ModeDryRun  Mode = "dry-run"
	ModeExecute Mode = "execute"
)

// ParseMode maps a CLI mode string onto a Mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeExecute:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("core: unknown mode %q (want %q or %q)", s, ModeDryRun, ModeExecute)
	}
}

// RunOptions select the behavior of a run, threaded explicitly from the CLI
// down to the engines instead of living in process-wide state.
type RunOptions struct {
	Mode Mode
	// RotateTelemetry replaces telemetry-only database rows with fresh
	// identifiers instead of deleting them. Extension, trial and auth
	// matches are always deleted regardless.
	RotateTelemetry bool
}

// Result aggregates the outcome of one run (or of a single file within it).
type Result struct {
	FilesProcessed  int
	RecordsRemoved  int
	RecordsReplaced int

	// MatchesByCategory is populated by dry runs so the report can show what
	// would be touched without mutating anything.
	MatchesByCategory map[string]int

	Warnings []Warning
	Errors   []FileError
}

// Warning records a non-fatal observation, such as matches that survived a
// cleaning pass or a failed vacuum.
type Warning struct {
	Path    string
	Message string
}

// Merge folds another result into r. Used by the orchestrator to aggregate
// per-file results.
func (r *Result) Merge(other Result) {
	r.FilesProcessed += other.FilesProcessed
	r.RecordsRemoved += other.RecordsRemoved
	r.RecordsReplaced += other.RecordsReplaced
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
	for cat, n := range other.MatchesByCategory {
		if r.MatchesByCategory == nil {
			r.MatchesByCategory = make(map[string]int)
		}
		r.MatchesByCategory[cat] += n
	}
}

// OK reports whether the run completed without any per-file errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}
