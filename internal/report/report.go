// Package report renders the run summary shown to the user.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/statewipe/statewipe/internal/core"
)

var (
	colorGreen  = lipgloss.Color("#A6E3A1")
	colorYellow = lipgloss.Color("#F9E2AF")
	colorRed    = lipgloss.Color("#F38BA8")
	colorBlue   = lipgloss.Color("#89B4FA")
	colorDim    = lipgloss.Color("#585B70")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	errStyle   = lipgloss.NewStyle().Foreground(colorRed)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

// Render produces the human-readable summary for a finished run.
func Render(res core.Result, opts core.RunOptions) string {
	var sb strings.Builder

	switch opts.Mode {
	case core.ModeDryRun:
		sb.WriteString(titleStyle.Render("Dry run — no files were modified"))
	default:
		sb.WriteString(titleStyle.Render("Cleaning complete"))
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "  Files processed:  %d\n", res.FilesProcessed)
	if opts.Mode == core.ModeDryRun {
		total := lo.Sum(lo.Values(res.MatchesByCategory))
		fmt.Fprintf(&sb, "  Matches found:    %d\n", total)
		for _, cat := range sortedKeys(res.MatchesByCategory) {
			fmt.Fprintf(&sb, "    %s %d\n", dimStyle.Render(pad(cat+":")), res.MatchesByCategory[cat])
		}
	} else {
		fmt.Fprintf(&sb, "  Records removed:  %d\n", res.RecordsRemoved)
		fmt.Fprintf(&sb, "  Records replaced: %d\n", res.RecordsReplaced)
	}

	if len(res.Warnings) > 0 {
		sb.WriteString("\n")
		sb.WriteString(warnStyle.Render(fmt.Sprintf("%d warning(s):", len(res.Warnings))))
		sb.WriteString("\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&sb, "  • %s: %s\n", w.Path, w.Message)
		}
	}

	if len(res.Errors) > 0 {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render(fmt.Sprintf("%d file(s) failed:", len(res.Errors))))
		sb.WriteString("\n")
		byKind := lo.GroupBy(res.Errors, func(e core.FileError) core.ErrorKind { return e.Kind })
		for _, kind := range sortedErrorKinds(byKind) {
			for _, e := range byKind[kind] {
				fmt.Fprintf(&sb, "  • [%s] %s: %v\n", kind, e.Path, e.Err)
			}
		}
	} else if res.FilesProcessed > 0 {
		sb.WriteString("\n")
		sb.WriteString(okStyle.Render("No errors."))
		sb.WriteString("\n")
	}

	return sb.String()
}

func sortedKeys(m map[string]int) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func sortedErrorKinds(m map[core.ErrorKind][]core.FileError) []core.ErrorKind {
	kinds := lo.Keys(m)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func pad(s string) string {
	return fmt.Sprintf("%-12s", s)
}
