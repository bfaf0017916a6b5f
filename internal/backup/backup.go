// Package backup copies target files aside before mutation and restores them
// when a mutation fails. Backups are verified structurally before any
// mutation is allowed to proceed.
package backup

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/statewipe/statewipe/internal/core"
)

// Artifact describes one completed, verified backup.
type Artifact struct {
	SourcePath string
	BackupPath string
	CreatedAt  time.Time
	Size       int64
	Checksum   string // sha256 of the backed-up bytes
}

// Manager writes backups into a single directory. Filenames embed the
// creation timestamp, so backups of different files (or repeated backups of
// the same file) never collide.
type Manager struct {
	dir string
	now func() time.Time
}

// NewManager returns a Manager writing into dir. The directory is created on
// first use.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, now: time.Now}
}

// Create copies file byte-for-byte into the backup directory and verifies
// the copy is structurally valid for its kind. For SQLite databases the copy
// is taken while holding a read transaction on the source so a concurrent
// writer cannot tear it.
func (m *Manager) Create(file core.CandidateFile) (Artifact, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("backup: creating backup dir: %w", err)
	}

	ts := m.now()
	backupPath := filepath.Join(m.dir, fmt.Sprintf("%s.backup_%d", filepath.Base(file.Path), ts.UnixNano()))

	var (
		size     int64
		checksum string
		err      error
	)
	switch file.Kind {
	case core.KindSQLite:
		size, checksum, err = m.copySQLite(file.Path, backupPath)
	default:
		size, checksum, err = copyFile(file.Path, backupPath)
	}
	if err != nil {
		os.Remove(backupPath)
		return Artifact{}, err
	}

	art := Artifact{
		SourcePath: file.Path,
		BackupPath: backupPath,
		CreatedAt:  ts,
		Size:       size,
		Checksum:   checksum,
	}

	if err := Verify(core.CandidateFile{Path: backupPath, Kind: file.Kind}); err != nil {
		os.Remove(backupPath)
		return Artifact{}, fmt.Errorf("backup: verifying %s: %w", backupPath, err)
	}

	log.Printf("[backup] %s -> %s (%d bytes)", file.Path, backupPath, size)
	return art, nil
}

// Restore copies the backup back over the original file. Called only when a
// mutation fails after a successful backup.
func (m *Manager) Restore(art Artifact) error {
	if _, _, err := copyFile(art.BackupPath, art.SourcePath); err != nil {
		return fmt.Errorf("backup: restoring %s: %w", art.SourcePath, err)
	}
	log.Printf("[backup] restored %s from %s", art.SourcePath, art.BackupPath)
	return nil
}

// Verify checks that a file is structurally sound for its kind: a SQLite
// database must pass integrity_check, a JSON file must parse. Empty files
// fail either way.
func Verify(file core.CandidateFile) error {
	info, err := os.Stat(file.Path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	switch file.Kind {
	case core.KindSQLite:
		return verifySQLite(file.Path)
	case core.KindJSON:
		data, err := os.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("not valid JSON")
		}
		return nil
	default:
		return fmt.Errorf("unknown file kind %q", file.Kind)
	}
}

func verifySQLite(path string) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	var status string
	if err := db.QueryRow(`PRAGMA integrity_check;`).Scan(&status); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("integrity check failed: %s", status)
	}
	return nil
}

// copySQLite copies a database file while holding a read transaction on it,
// so nothing can rewrite pages mid-copy. Any pending WAL frames are
// checkpointed into the main file first, best-effort.
func (m *Manager) copySQLite(src, dst string) (int64, string, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", src))
	if err != nil {
		return 0, "", fmt.Errorf("backup: opening %s: %w", src, err)
	}
	defer db.Close()

	// Editors usually leave these stores in rollback-journal mode, but fold
	// in WAL frames when present so the raw copy is complete.
	if _, err := db.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		log.Printf("[backup] wal_checkpoint on %s: %v", src, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, "", fmt.Errorf("backup: read-locking %s: %w", src, err)
	}
	defer tx.Rollback()

	// Force the shared lock before copying.
	var n int
	if err := tx.QueryRow(`SELECT count(*) FROM sqlite_master;`).Scan(&n); err != nil {
		return 0, "", fmt.Errorf("backup: read-locking %s: %w", src, err)
	}

	return copyFile(src, dst)
}

func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("backup: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("backup: creating %s: %w", dst, err)
	}

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, h), in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", fmt.Errorf("backup: copying %s: %w", src, err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}
