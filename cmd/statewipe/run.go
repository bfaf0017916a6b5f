package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/statewipe/statewipe/internal/backup"
	"github.com/statewipe/statewipe/internal/catalog"
	"github.com/statewipe/statewipe/internal/config"
	"github.com/statewipe/statewipe/internal/core"
	"github.com/statewipe/statewipe/internal/report"
	"github.com/statewipe/statewipe/internal/run"
)

func newRunCommand(cfg config.Config) *cobra.Command {
	var (
		mode            string
		rotateTelemetry bool
		baseDirs        []string
		patternFile     string
		backupDir       string
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan editor state files and remove or rotate matching entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := core.ParseMode(mode)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Timeout()
			}
			return execute(cmd, cfg, runArgs{
				mode:            m,
				rotateTelemetry: rotateTelemetry,
				baseDirs:        baseDirs,
				patternFile:     patternFile,
				backupDir:       backupDir,
				timeout:         timeout,
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(core.ModeDryRun), "dry-run or execute")
	cmd.Flags().BoolVar(&rotateTelemetry, "rotate-telemetry", false, "replace telemetry identifiers instead of deleting them")
	cmd.Flags().StringArrayVar(&baseDirs, "base-dir", nil, "editor base directory to scan (repeatable; default: auto-detect)")
	cmd.Flags().StringVar(&patternFile, "pattern-file", cfg.PatternFile, "pattern catalog file (JSON or YAML; default: built-in catalog)")
	cmd.Flags().StringVar(&backupDir, "backup-dir", cfg.BackupDir, "directory for backup artifacts")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall batch time ceiling (0 = none)")

	return cmd
}

// newPreviewCommand is a shorthand for run --mode dry-run.
func newPreviewCommand(cfg config.Config) *cobra.Command {
	var (
		baseDirs    []string
		patternFile string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what a run would change without touching any file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, cfg, runArgs{
				mode:        core.ModeDryRun,
				baseDirs:    baseDirs,
				patternFile: patternFile,
				backupDir:   cfg.BackupDir,
				timeout:     cfg.Timeout(),
			})
		},
	}

	cmd.Flags().StringArrayVar(&baseDirs, "base-dir", nil, "editor base directory to scan (repeatable; default: auto-detect)")
	cmd.Flags().StringVar(&patternFile, "pattern-file", cfg.PatternFile, "pattern catalog file (JSON or YAML; default: built-in catalog)")

	return cmd
}

type runArgs struct {
	mode            core.Mode
	rotateTelemetry bool
	baseDirs        []string
	patternFile     string
	backupDir       string
	timeout         time.Duration
}

func execute(cmd *cobra.Command, cfg config.Config, args runArgs) error {
	// A malformed catalog is fatal before any file is touched: the rules
	// apply globally.
	cat := catalog.Default()
	if args.patternFile != "" {
		var err error
		cat, err = catalog.Load(args.patternFile)
		if err != nil {
			return err
		}
	}

	runner := run.New(cat, backup.NewManager(args.backupDir))
	res, err := runner.Run(cmd.Context(), run.Params{
		BaseDirs: args.baseDirs,
		Editors:  cfg.Editors,
		Options: core.RunOptions{
			Mode:            args.mode,
			RotateTelemetry: args.rotateTelemetry,
		},
		Timeout: args.timeout,
	})

	fmt.Fprint(cmd.OutOrStdout(), report.Render(res, core.RunOptions{Mode: args.mode, RotateTelemetry: args.rotateTelemetry}))

	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%d file(s) errored", len(res.Errors))
	}
	return nil
}
