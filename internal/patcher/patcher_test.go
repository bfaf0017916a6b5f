package patcher

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/statewipe/statewipe/internal/backup"
	"github.com/statewipe/statewipe/internal/catalog"
	"github.com/statewipe/statewipe/internal/core"
	"github.com/statewipe/statewipe/internal/identity"
)

const oldMachineID = "cafebabecafebabecafebabecafebabecafebabecafebabecafebabecafebabe"

func writeStorageJSON(t *testing.T, dir string, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "storage.json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
	return doc
}

func newPatcher(t *testing.T, backupDir string) (*Patcher, identity.Set) {
	t.Helper()
	ids, err := identity.NewSet()
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return New(catalog.Default(), backup.NewManager(backupDir), ids), ids
}

func TestPatch_RotatesTelemetryAndRemovesIdentity(t *testing.T) {
	dir := t.TempDir()
	path := writeStorageJSON(t, dir, map[string]any{
		"telemetry.machineId":   oldMachineID,
		"telemetry.devDeviceId": "0b6a3535-e885-44d4-9daf-9a8255df7054",
		"telemetry.sqmId":       "c2fbe396-01f5-41a4-9bb6-47e0f37f58be",
		"augment.vip.lastCheck": "2025-11-02",
		"windowControlsOverlay": true,
	})
	before, _ := os.ReadFile(path)

	backupDir := filepath.Join(dir, "backups")
	p, ids := newPatcher(t, backupDir)
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeExecute})

	if len(res.Errors) != 0 {
		t.Fatalf("errors: %v", res.Errors)
	}
	if res.RecordsRemoved != 1 || res.RecordsReplaced != 3 {
		t.Errorf("removed/replaced = %d/%d, want 1/3", res.RecordsRemoved, res.RecordsReplaced)
	}

	doc := readDoc(t, path)
	if doc["telemetry.machineId"] != ids.MachineID {
		t.Errorf("machineId = %v, want run set's machine id", doc["telemetry.machineId"])
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(doc["telemetry.machineId"].(string)) {
		t.Error("rotated machine id is not 64 lowercase hex chars")
	}
	if doc["telemetry.devDeviceId"] != ids.DeviceID {
		t.Errorf("devDeviceId = %v, want run set's device id", doc["telemetry.devDeviceId"])
	}
	if _, ok := doc["augment.vip.lastCheck"]; ok {
		t.Error("extension key survived")
	}
	if doc["windowControlsOverlay"] != true {
		t.Error("unrelated key was touched")
	}

	// Backup carries the pre-mutation bytes.
	entries, err := os.ReadDir(backupDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("backup dir entries = %v, err = %v", entries, err)
	}
	got, _ := os.ReadFile(filepath.Join(backupDir, entries[0].Name()))
	if !bytes.Equal(before, got) {
		t.Error("backup differs from pre-mutation content")
	}
}

func TestPatch_OneLevelOfNesting(t *testing.T) {
	dir := t.TempDir()
	path := writeStorageJSON(t, dir, map[string]any{
		"telemetry": map[string]any{
			"machineId": oldMachineID,
			"sqmId":     "8cc72e4d-5e76-43f6-8ba0-5b826d5bbf81",
		},
		"profileAssociations": map[string]any{
			"augment.workspace": "default",
		},
	})

	p, ids := newPatcher(t, filepath.Join(dir, "backups"))
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeExecute})

	if len(res.Errors) != 0 {
		t.Fatalf("errors: %v", res.Errors)
	}

	doc := readDoc(t, path)
	tele := doc["telemetry"].(map[string]any)
	if tele["machineId"] != ids.MachineID {
		t.Errorf("nested machineId = %v, want rotated value", tele["machineId"])
	}
	if tele["sqmId"] != ids.SqmID {
		t.Errorf("nested sqmId = %v, want rotated value", tele["sqmId"])
	}
	assoc := doc["profileAssociations"].(map[string]any)
	if _, ok := assoc["augment.workspace"]; ok {
		t.Error("nested extension key survived")
	}
}

func TestPatch_DryRunIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeStorageJSON(t, dir, map[string]any{
		"telemetry.machineId": oldMachineID,
		"augment.state":       "x",
	})
	before, _ := os.ReadFile(path)

	backupDir := filepath.Join(dir, "backups")
	p, _ := newPatcher(t, backupDir)
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeDryRun})

	if len(res.Errors) != 0 {
		t.Fatalf("errors: %v", res.Errors)
	}
	if res.MatchesByCategory[string(catalog.CategoryTelemetry)] == 0 {
		t.Error("dry run found no telemetry matches")
	}
	if res.MatchesByCategory[string(catalog.CategoryExtension)] == 0 {
		t.Error("dry run found no extension matches")
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("dry run changed file content")
	}
	if _, err := os.Stat(backupDir); !os.IsNotExist(err) {
		t.Error("dry run created a backup dir")
	}
}

func TestPatch_InvalidJSONIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.json")
	os.WriteFile(path, []byte("{definitely not json"), 0o644)
	before, _ := os.ReadFile(path)

	p, _ := newPatcher(t, filepath.Join(dir, "backups"))
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeExecute})

	if len(res.Errors) != 1 || res.Errors[0].Kind != core.ErrParse {
		t.Fatalf("errors = %v, want one parse error", res.Errors)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("unparseable file was modified")
	}
}

func TestPatch_NoChangesLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := writeStorageJSON(t, dir, map[string]any{"windowState": "maximized"})
	before, _ := os.ReadFile(path)

	backupDir := filepath.Join(dir, "backups")
	p, _ := newPatcher(t, backupDir)
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeExecute})

	if len(res.Errors) != 0 {
		t.Fatalf("errors: %v", res.Errors)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("file with no matches was rewritten")
	}
	if _, err := os.Stat(backupDir); !os.IsNotExist(err) {
		t.Error("backup created for an unchanged file")
	}
}

func TestPatch_ResultStaysValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeStorageJSON(t, dir, map[string]any{
		"telemetry.machineId": oldMachineID,
		"backupWorkspaces": map[string]any{
			"folders": []any{"file:///tmp/project"},
		},
	})

	p, _ := newPatcher(t, filepath.Join(dir, "backups"))
	res := p.Patch(context.Background(), core.CandidateFile{Path: path, Kind: core.KindJSON},
		core.RunOptions{Mode: core.ModeExecute})
	if len(res.Errors) != 0 {
		t.Fatalf("errors: %v", res.Errors)
	}

	data, _ := os.ReadFile(path)
	if !json.Valid(data) {
		t.Fatal("patched file is not valid JSON")
	}
	doc := readDoc(t, path)
	if _, ok := doc["backupWorkspaces"]; !ok {
		t.Error("non-matching nested object was dropped")
	}
}
