// Package discover walks editor base directories and returns the candidate
// state files for cleaning: the global key-value store, per-workspace
// stores, and the telemetry JSON config.
package discover

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/statewipe/statewipe/internal/core"
)

const (
	stateDBName     = "state.vscdb"
	storageJSONName = "storage.json"
)

// Discover returns every candidate file under the given base directories.
// Inaccessible directories are recorded as discovery errors and the walk
// continues: one unreadable editor must not hide the others.
func Discover(baseDirs []string) ([]core.CandidateFile, []core.FileError) {
	var (
		files    []core.CandidateFile
		failures []core.FileError
	)

	for _, base := range baseDirs {
		if _, err := os.Stat(base); err != nil {
			if os.IsNotExist(err) {
				log.Printf("[discover] %s does not exist, skipping", base)
				continue
			}
			failures = append(failures, core.NewFileError(base, core.ErrDiscovery,
				fmt.Errorf("discover: %w", err)))
			continue
		}

		globalStorage := filepath.Join(base, "User", "globalStorage")

		if path := filepath.Join(globalStorage, stateDBName); fileExists(path) {
			files = append(files, core.CandidateFile{Path: path, Kind: core.KindSQLite})
		}
		if path := filepath.Join(globalStorage, storageJSONName); fileExists(path) {
			files = append(files, core.CandidateFile{Path: path, Kind: core.KindJSON})
		}

		wsFiles, wsErrs := workspaceStores(filepath.Join(base, "User", "workspaceStorage"))
		files = append(files, wsFiles...)
		failures = append(failures, wsErrs...)
	}

	log.Printf("[discover] found %d candidate file(s) across %d base dir(s)", len(files), len(baseDirs))
	return files, failures
}

// workspaceStores finds the per-workspace state databases, one directory of
// hashed workspace ids deep.
func workspaceStores(dir string) ([]core.CandidateFile, []core.FileError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []core.FileError{core.NewFileError(dir, core.ErrDiscovery,
			fmt.Errorf("discover: %w", err))}
	}

	var files []core.CandidateFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), stateDBName)
		if fileExists(path) {
			files = append(files, core.CandidateFile{Path: path, Kind: core.KindSQLite})
		}
	}
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
