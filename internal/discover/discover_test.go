package discover

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/statewipe/statewipe/internal/core"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "User", "globalStorage", "state.vscdb"))
	touch(t, filepath.Join(base, "User", "globalStorage", "storage.json"))
	touch(t, filepath.Join(base, "User", "workspaceStorage", "a1b2c3", "state.vscdb"))
	touch(t, filepath.Join(base, "User", "workspaceStorage", "d4e5f6", "state.vscdb"))
	// Noise the walk must ignore.
	touch(t, filepath.Join(base, "User", "workspaceStorage", "a1b2c3", "workspace.json"))
	touch(t, filepath.Join(base, "User", "globalStorage", "state.vscdb.backup_1"))

	files, errs := Discover([]string{base})
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(files) != 4 {
		t.Fatalf("found %d files, want 4: %v", len(files), files)
	}

	kinds := map[core.FileKind]int{}
	for _, f := range files {
		kinds[f.Kind]++
	}
	if kinds[core.KindSQLite] != 3 {
		t.Errorf("sqlite candidates = %d, want 3", kinds[core.KindSQLite])
	}
	if kinds[core.KindJSON] != 1 {
		t.Errorf("json candidates = %d, want 1", kinds[core.KindJSON])
	}
}

func TestDiscover_MissingBaseDirIsNotAnError(t *testing.T) {
	files, errs := Discover([]string{filepath.Join(t.TempDir(), "nope")})
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(files) != 0 {
		t.Fatalf("found %d files, want 0", len(files))
	}
}

func TestDiscover_EmptyEditorDir(t *testing.T) {
	base := t.TempDir()
	files, errs := Discover([]string{base})
	if len(errs) != 0 || len(files) != 0 {
		t.Fatalf("files = %v, errs = %v, want none", files, errs)
	}
}

func TestBaseDirs(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("exercises the XDG path branch")
	}

	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", root)
	if err := os.MkdirAll(filepath.Join(root, "Code"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "Cursor"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	dirs := BaseDirs(nil)
	if len(dirs) != 2 {
		t.Fatalf("BaseDirs = %v, want the two existing editor dirs", dirs)
	}

	dirs = BaseDirs([]string{"Cursor"})
	if len(dirs) != 1 || filepath.Base(dirs[0]) != "Cursor" {
		t.Fatalf("BaseDirs(Cursor) = %v", dirs)
	}
}
