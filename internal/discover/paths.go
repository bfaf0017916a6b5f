package discover

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultEditors are the application directory names of the editors whose
// state this tool knows how to clean. The list is data: adding a fork means
// adding a name here, not new discovery code.
var DefaultEditors = []string{
	"Code",
	"Code - Insiders",
	"VSCodium",
	"Cursor",
}

// BaseDirs resolves the plausible per-editor base directories for the
// current platform. Directories that do not exist are filtered out; a
// machine typically has only one or two of these editors installed.
func BaseDirs(editors []string) []string {
	if len(editors) == 0 {
		editors = DefaultEditors
	}
	root := appSupportRoot()
	if root == "" {
		return nil
	}

	var dirs []string
	for _, editor := range editors {
		dir := filepath.Join(root, editor)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// appSupportRoot returns the OS-specific directory that editors place their
// user data under.
func appSupportRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	switch runtime.GOOS {
	case "darwin":
		if home == "" {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData
		}
		if home == "" {
			return ""
		}
		return filepath.Join(home, "AppData", "Roaming")
	default:
		if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
			return base
		}
		if home == "" {
			return ""
		}
		return filepath.Join(home, ".config")
	}
}
