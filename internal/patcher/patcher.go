// Package patcher applies the catalog's match semantics to JSON
// configuration files: telemetry identifier fields are rotated to fresh
// values, extension/trial/auth keys are removed outright.
package patcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dchest/safefile"

	"github.com/statewipe/statewipe/internal/backup"
	"github.com/statewipe/statewipe/internal/catalog"
	"github.com/statewipe/statewipe/internal/core"
	"github.com/statewipe/statewipe/internal/identity"
)

// Patcher rewrites JSON config files. Like the database cleaner it shares
// one identifier set across every file in a run.
type Patcher struct {
	catalog *catalog.Catalog
	backups *backup.Manager
	ids     identity.Set
}

// New returns a Patcher using the given catalog, backup manager and
// identifier set.
func New(cat *catalog.Catalog, backups *backup.Manager, ids identity.Set) *Patcher {
	return &Patcher{catalog: cat, backups: backups, ids: ids}
}

// Patch processes one JSON config file. Files that are not valid JSON are
// skipped with a parse error; the run continues.
func (p *Patcher) Patch(ctx context.Context, file core.CandidateFile, opts core.RunOptions) core.Result {
	var res core.Result
	res.FilesProcessed = 1

	data, err := os.ReadFile(file.Path)
	if err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrValidation, err))
		return res
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrParse,
			fmt.Errorf("patcher: parsing %s: %w", file.Path, err)))
		return res
	}

	removed, replaced, counts := p.apply(doc, opts.Mode == core.ModeDryRun)

	if opts.Mode == core.ModeDryRun {
		res.MatchesByCategory = counts
		return res
	}

	if removed == 0 && replaced == 0 {
		return res
	}

	art, err := p.backups.Create(file)
	if err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrBackup, err))
		return res
	}

	if err := p.write(file.Path, doc); err != nil {
		// safefile replaces atomically, so the original should be intact;
		// restoring from the verified backup covers a torn rename anyway.
		if rerr := p.backups.Restore(art); rerr != nil {
			log.Printf("[patcher] restore after failed write: %v", rerr)
		}
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrMutation, err))
		return res
	}

	res.RecordsRemoved = removed
	res.RecordsReplaced = replaced
	return res
}

// apply walks the document's top level and one level of nesting, mutating it
// in place unless dryRun is set. It returns removal/replacement counts and
// the per-category match counts.
func (p *Patcher) apply(doc map[string]any, dryRun bool) (removed, replaced int, counts map[string]int) {
	counts = make(map[string]int)

	for key, value := range doc {
		strValue, _ := value.(string)
		cats := p.catalog.MatchCategories(key, strValue)
		if len(cats) > 0 {
			for _, cat := range cats {
				counts[string(cat)]++
			}
			if telemetryOnly(cats) {
				if !dryRun {
					doc[key] = p.replacementFor(key)
				}
				replaced++
			} else {
				if !dryRun {
					delete(doc, key)
				}
				removed++
			}
			continue
		}

		// One level of nesting covers grouped identifier objects such as
		// {"telemetry": {"machineId": ...}}.
		nested, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for nkey, nvalue := range nested {
			nstr, _ := nvalue.(string)
			ncats := p.catalog.MatchCategories(key+"."+nkey, nstr)
			if len(ncats) == 0 {
				continue
			}
			for _, cat := range ncats {
				counts[string(cat)]++
			}
			if telemetryOnly(ncats) {
				if !dryRun {
					nested[nkey] = p.replacementFor(nkey)
				}
				replaced++
			} else {
				if !dryRun {
					delete(nested, nkey)
				}
				removed++
			}
		}
	}
	return removed, replaced, counts
}

func telemetryOnly(cats []catalog.Category) bool {
	for _, cat := range cats {
		if cat != catalog.CategoryTelemetry {
			return false
		}
	}
	return true
}

func (p *Patcher) replacementFor(key string) string {
	if v, ok := p.ids.ForField(key); ok {
		return v
	}
	v, err := identity.NewUUID()
	if err != nil {
		// crypto/rand failing means the process has bigger problems; keep
		// the run alive with the per-run device id.
		log.Printf("[patcher] generating replacement for %q: %v", key, err)
		return p.ids.DeviceID
	}
	return v
}

// write marshals the document, validates the bytes still parse, and swaps
// the file atomically: the original is only replaced once the full new
// content is on disk.
func (p *Patcher) write(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("patcher: marshaling %s: %w", path, err)
	}
	data = append(data, '\n')

	if !json.Valid(data) {
		return fmt.Errorf("patcher: produced invalid JSON for %s", path)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	f, err := safefile.Create(path, mode)
	if err != nil {
		return fmt.Errorf("patcher: creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("patcher: writing %s: %w", path, err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("patcher: committing %s: %w", path, err)
	}
	return nil
}
