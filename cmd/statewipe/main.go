package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/statewipe/statewipe/internal/config"
	"github.com/statewipe/statewipe/internal/version"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:           "statewipe",
		Short:         "statewipe removes or rotates extension, telemetry and license entries in editor state files.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand(cfg))
	root.AddCommand(newPreviewCommand(cfg))
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging sends debug logs to stderr when STATEWIPE_DEBUG is set and to
// a rotating file under the state dir otherwise. The user-facing report goes
// to stdout either way.
func setupLogging() {
	if os.Getenv("STATEWIPE_DEBUG") != "" {
		log.SetOutput(os.Stderr)
		return
	}
	stateDir, err := config.StateDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "statewipe.log"),
		MaxSize:    5, // MB
		MaxBackups: 3,
	})
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("statewipe " + version.String())
		},
	}
}
