// Package run sequences a full cleaning batch: discovery, then per-file
// backup, mutation and verification, aggregating everything into one result.
package run

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/statewipe/statewipe/internal/backup"
	"github.com/statewipe/statewipe/internal/catalog"
	"github.com/statewipe/statewipe/internal/cleaner"
	"github.com/statewipe/statewipe/internal/core"
	"github.com/statewipe/statewipe/internal/discover"
	"github.com/statewipe/statewipe/internal/identity"
	"github.com/statewipe/statewipe/internal/patcher"
)

// Params describe one batch invocation.
type Params struct {
	// BaseDirs are explicit editor base directories. When empty, the
	// platform defaults for Editors are resolved instead.
	BaseDirs []string
	// Editors narrows auto-resolution to specific editor directory names.
	Editors []string
	Options core.RunOptions
	// Timeout bounds the whole batch; zero means no ceiling.
	Timeout time.Duration
}

// Runner owns the per-run collaborators.
type Runner struct {
	catalog *catalog.Catalog
	backups *backup.Manager
}

// New returns a Runner over the given catalog and backup manager.
func New(cat *catalog.Catalog, backups *backup.Manager) *Runner {
	return &Runner{catalog: cat, backups: backups}
}

// Run executes one batch. Per-file failures land in the result's error list;
// the returned error is reserved for conditions under which the run could
// not meaningfully begin or finish (no candidates where some were expected,
// identifier generation failure, batch deadline exceeded).
func (r *Runner) Run(ctx context.Context, p Params) (core.Result, error) {
	var res core.Result

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	baseDirs := p.BaseDirs
	explicit := len(baseDirs) > 0
	if !explicit {
		baseDirs = discover.BaseDirs(p.Editors)
	}

	files, discoveryErrs := discover.Discover(baseDirs)
	res.Errors = append(res.Errors, discoveryErrs...)

	if len(files) == 0 {
		if explicit {
			return res, fmt.Errorf("run: no candidate files found under the given base dirs")
		}
		log.Printf("[run] nothing to do: no editor state found")
		return res, nil
	}

	counts := lo.CountValuesBy(files, func(f core.CandidateFile) core.FileKind { return f.Kind })
	log.Printf("[run] %s: %d database(s), %d config file(s)",
		p.Options.Mode, counts[core.KindSQLite], counts[core.KindJSON])

	// One identifier set per run: every rotated file on this machine ends up
	// with the same fresh identity.
	ids, err := identity.NewSet()
	if err != nil {
		return res, fmt.Errorf("run: %w", err)
	}

	dbCleaner := cleaner.New(r.catalog, r.backups, ids)
	cfgPatcher := patcher.New(r.catalog, r.backups, ids)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("run: batch deadline exceeded after %d file(s): %w",
				res.FilesProcessed, err)
		}

		switch file.Kind {
		case core.KindSQLite:
			res.Merge(dbCleaner.Clean(ctx, file, p.Options))
		case core.KindJSON:
			res.Merge(cfgPatcher.Patch(ctx, file, p.Options))
		}
	}

	return res, nil
}
