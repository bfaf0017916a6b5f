// Package cleaner implements the database cleaning engine: it scans an
// editor's key-value store, classifies rows against the pattern catalog, and
// deletes or rotates the matches inside a single transaction.
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/statewipe/statewipe/internal/backup"
	"github.com/statewipe/statewipe/internal/catalog"
	"github.com/statewipe/statewipe/internal/core"
	"github.com/statewipe/statewipe/internal/identity"
)

// Cleaner cleans SQLite key-value stores. One Cleaner serves a whole run and
// applies the same identifier set to every file it rotates.
type Cleaner struct {
	catalog *catalog.Catalog
	backups *backup.Manager
	ids     identity.Set

	retries    int
	retryDelay time.Duration

	// beforeCommit, when set, runs inside the mutation transaction just
	// before commit. Tests use it to force the rollback-and-restore path.
	beforeCommit func() error
}

// New returns a Cleaner using the given catalog, backup manager and
// identifier set.
func New(cat *catalog.Catalog, backups *backup.Manager, ids identity.Set) *Cleaner {
	return &Cleaner{
		catalog:    cat,
		backups:    backups,
		ids:        ids,
		retries:    3,
		retryDelay: 250 * time.Millisecond,
	}
}

type matchedRow struct {
	key        string
	value      string
	categories []catalog.Category
}

// Clean processes a single database file. All failures are folded into the
// returned result as per-file errors; one bad file must never abort a batch.
func (c *Cleaner) Clean(ctx context.Context, file core.CandidateFile, opts core.RunOptions) core.Result {
	var res core.Result
	res.FilesProcessed = 1

	if err := backup.Verify(file); err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrValidation, err))
		return res
	}

	matched, err := c.scan(ctx, file.Path)
	if err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrValidation, err))
		return res
	}

	if opts.Mode == core.ModeDryRun {
		res.MatchesByCategory = countByCategory(matched)
		return res
	}

	if len(matched) == 0 {
		return res
	}

	art, err := c.backups.Create(file)
	if err != nil {
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrBackup, err))
		return res
	}

	removed, replaced, err := c.mutate(ctx, file.Path, matched, opts)
	if err != nil {
		if rerr := c.backups.Restore(art); rerr != nil {
			log.Printf("[cleaner] restore after failed mutation: %v", rerr)
		}
		res.Errors = append(res.Errors, core.NewFileError(file.Path, core.ErrMutation, err))
		return res
	}
	res.RecordsRemoved = removed
	res.RecordsReplaced = replaced

	// Space reclamation happens after commit; failure is observable but not
	// an error.
	if err := c.vacuum(file.Path); err != nil {
		res.Warnings = append(res.Warnings, core.Warning{
			Path:    file.Path,
			Message: fmt.Sprintf("vacuum failed: %v", err),
		})
	}

	res.Warnings = append(res.Warnings, c.postVerify(ctx, file)...)
	return res
}

// scan reads every row of ItemTable read-only and returns the rows matching
// any catalog rule. Pattern text never reaches SQL: matching happens here,
// and later mutations are parameterized by exact key.
func (c *Cleaner) scan(ctx context.Context, path string) ([]matchedRow, error) {
	var matched []matchedRow
	err := c.withRetry(func() error {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
		if err != nil {
			return fmt.Errorf("cleaner: opening %s: %w", path, err)
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, `SELECT key, value FROM ItemTable`)
		if err != nil {
			return fmt.Errorf("cleaner: scanning %s: %w", path, err)
		}
		defer rows.Close()

		matched = matched[:0]
		for rows.Next() {
			var key string
			var raw []byte // ItemTable stores values as BLOBs
			if err := rows.Scan(&key, &raw); err != nil {
				return fmt.Errorf("cleaner: scanning row in %s: %w", path, err)
			}
			value := string(raw)
			if cats := c.catalog.MatchCategories(key, value); len(cats) > 0 {
				matched = append(matched, matchedRow{key: key, value: value, categories: cats})
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("cleaner: scanning %s: %w", path, err)
		}
		return nil
	})
	return matched, err
}

// mutate deletes or rotates the matched rows in one transaction and returns
// the removed and replaced counts.
func (c *Cleaner) mutate(ctx context.Context, path string, matched []matchedRow, opts core.RunOptions) (removed, replaced int, err error) {
	err = c.withRetry(func() error {
		removed, replaced = 0, 0

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
		if err != nil {
			return fmt.Errorf("cleaner: opening %s: %w", path, err)
		}
		defer db.Close()

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("cleaner: begin tx on %s: %w", path, err)
		}
		defer tx.Rollback()

		for _, row := range matched {
			if rotateRow(row, opts) {
				value, err := c.replacementFor(row.key)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `UPDATE ItemTable SET value = ? WHERE key = ?`, value, row.key); err != nil {
					return fmt.Errorf("cleaner: rotating %q in %s: %w", row.key, path, err)
				}
				replaced++
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM ItemTable WHERE key = ?`, row.key); err != nil {
				return fmt.Errorf("cleaner: deleting %q in %s: %w", row.key, path, err)
			}
			removed++
		}

		if c.beforeCommit != nil {
			if err := c.beforeCommit(); err != nil {
				return fmt.Errorf("cleaner: mutating %s: %w", path, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("cleaner: commit on %s: %w", path, err)
		}
		return nil
	})
	return removed, replaced, err
}

// rotateRow decides delete-vs-rotate for one matched row. A row is rotated
// only when rotation is enabled and telemetry is the only category it
// matched: extension, trial, auth and custom matches always get deleted.
func rotateRow(row matchedRow, opts core.RunOptions) bool {
	if !opts.RotateTelemetry {
		return false
	}
	for _, cat := range row.categories {
		if cat != catalog.CategoryTelemetry {
			return false
		}
	}
	return true
}

// replacementFor produces a fresh value of the same semantic type as the
// identifier the key names: machine ids stay 64-char hex, everything else is
// a UUID.
func (c *Cleaner) replacementFor(key string) (string, error) {
	if v, ok := c.ids.ForField(key); ok {
		return v, nil
	}
	v, err := identity.NewUUID()
	if err != nil {
		return "", fmt.Errorf("cleaner: generating replacement for %q: %w", key, err)
	}
	return v, nil
}

func (c *Cleaner) vacuum(path string) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`VACUUM;`)
	return err
}

// postVerify re-opens the file read-only, checks structural integrity, and
// re-scans for survivors in the categories that were supposed to be fully
// removed. Survivors are rare but must be observable.
func (c *Cleaner) postVerify(ctx context.Context, file core.CandidateFile) []core.Warning {
	var warnings []core.Warning

	if err := backup.Verify(file); err != nil {
		warnings = append(warnings, core.Warning{
			Path:    file.Path,
			Message: fmt.Sprintf("post-clean integrity check failed: %v", err),
		})
		return warnings
	}

	matched, err := c.scan(ctx, file.Path)
	if err != nil {
		warnings = append(warnings, core.Warning{
			Path:    file.Path,
			Message: fmt.Sprintf("post-clean rescan failed: %v", err),
		})
		return warnings
	}

	survivors := 0
	for _, row := range matched {
		for _, cat := range row.categories {
			for _, removal := range catalog.RemovalCategories {
				if cat == removal {
					survivors++
				}
			}
		}
	}
	if survivors > 0 {
		warnings = append(warnings, core.Warning{
			Path:    file.Path,
			Message: fmt.Sprintf("%d removable match(es) still present after cleaning", survivors),
		})
	}
	return warnings
}

// withRetry runs fn, retrying a bounded number of times with doubling
// backoff when the database is locked by another process.
func (c *Cleaner) withRetry(fn func() error) error {
	delay := c.retryDelay
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Printf("[cleaner] database busy, retrying in %s (attempt %d/%d)", delay, attempt, c.retries)
			time.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
	}
	return err
}

func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

func countByCategory(matched []matchedRow) map[string]int {
	counts := make(map[string]int)
	for _, row := range matched {
		for _, cat := range row.categories {
			counts[string(cat)]++
		}
	}
	return counts
}
