package backup

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/statewipe/statewipe/internal/core"
)

func seedDB(t *testing.T, path string, rows map[string]string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for k, v := range rows {
		if _, err := db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, k, v); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func TestCreate_SQLiteBackupIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "state.vscdb")
	seedDB(t, src, map[string]string{"augment.sessionId": "abc123"})

	before := readFile(t, src)

	m := NewManager(filepath.Join(dir, "backups"))
	art, err := m.Create(core.CandidateFile{Path: src, Kind: core.KindSQLite})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(art.BackupPath), "state.vscdb.backup_") {
		t.Errorf("backup name %q does not follow <basename>.backup_<timestamp>", art.BackupPath)
	}
	got := readFile(t, art.BackupPath)
	if !bytes.Equal(before, got) {
		t.Error("backup content differs from source")
	}
	if art.Size != int64(len(before)) {
		t.Errorf("artifact size = %d, want %d", art.Size, len(before))
	}
	if art.Checksum == "" {
		t.Error("artifact checksum is empty")
	}
}

func TestCreate_JSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "storage.json")
	content := []byte(`{"telemetry.machineId": "aaaa"}` + "\n")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(filepath.Join(dir, "backups"))
	art, err := m.Create(core.CandidateFile{Path: src, Kind: core.KindJSON})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !bytes.Equal(content, readFile(t, art.BackupPath)) {
		t.Error("backup content differs from source")
	}
}

func TestCreate_InvalidJSONFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "storage.json")
	os.WriteFile(src, []byte("{broken"), 0o644)

	backupDir := filepath.Join(dir, "backups")
	m := NewManager(backupDir)
	if _, err := m.Create(core.CandidateFile{Path: src, Kind: core.KindJSON}); err == nil {
		t.Fatal("expected error backing up invalid JSON")
	}

	// A failed backup must not leave a partial artifact behind.
	entries, _ := os.ReadDir(backupDir)
	if len(entries) != 0 {
		t.Errorf("backup dir has %d leftover file(s)", len(entries))
	}
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "state.vscdb")
	seedDB(t, src, map[string]string{"augment.sessionId": "abc123"})
	before := readFile(t, src)

	m := NewManager(filepath.Join(dir, "backups"))
	art, err := m.Create(core.CandidateFile{Path: src, Kind: core.KindSQLite})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Clobber the source, then restore.
	if err := os.WriteFile(src, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("clobber: %v", err)
	}
	if err := m.Restore(art); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !bytes.Equal(before, readFile(t, src)) {
		t.Error("restored content differs from original")
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "ok.vscdb")
	seedDB(t, valid, nil)
	if err := Verify(core.CandidateFile{Path: valid, Kind: core.KindSQLite}); err != nil {
		t.Errorf("Verify(valid sqlite) = %v", err)
	}

	corrupt := filepath.Join(dir, "bad.vscdb")
	os.WriteFile(corrupt, []byte("this is not a database, not even close"), 0o644)
	if err := Verify(core.CandidateFile{Path: corrupt, Kind: core.KindSQLite}); err == nil {
		t.Error("Verify(corrupt sqlite) = nil, want error")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, nil, 0o644)
	if err := Verify(core.CandidateFile{Path: empty, Kind: core.KindJSON}); err == nil {
		t.Error("Verify(empty file) = nil, want error")
	}

	if err := Verify(core.CandidateFile{Path: filepath.Join(dir, "missing"), Kind: core.KindJSON}); err == nil {
		t.Error("Verify(missing file) = nil, want error")
	}
}
