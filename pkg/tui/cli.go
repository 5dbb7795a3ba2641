// Package tui renders CLI output: dataset summaries, reports and progress.
// Plain streaming output, no full-screen interface.
package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/nilmflow/nilmflow/pkg/dataset"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the tool banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  NILMFLOW")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Building electricity dataset converter"))
	fmt.Fprintln(w)
}

// RenderSummary renders the dataset summary followed by one line per
// building.
func RenderSummary(ds *dataset.DataSet) string {
	var sb strings.Builder

	sb.WriteString(accentStyle.Render("▸ DATASET") + "\n")
	for _, line := range strings.Split(strings.TrimRight(ds.String(), "\n"), "\n") {
		sb.WriteString("  " + line + "\n")
	}
	if ds.Metadata.FullName != "" {
		fmt.Fprintf(&sb, "  %s %s\n", mutedStyle.Render("full name :"), titleStyle.Render(ds.Metadata.FullName))
	}

	numbers := ds.BuildingNumbers()
	if len(numbers) == 0 {
		return sb.String()
	}

	sb.WriteString("\n" + accentStyle.Render("▸ BUILDINGS") + "\n")
	sb.WriteString(mutedStyle.Render(rule) + "\n")
	for _, n := range numbers {
		e := ds.Buildings[n].Electric()
		var rows int
		var first, last time.Time
		for _, c := range electric.Categories {
			for _, entry := range e.Entries(c) {
				if entry.Table == nil || entry.Table.Len() == 0 {
					continue
				}
				rows += entry.Table.Len()
				f, l := entry.Table.Span()
				if first.IsZero() || f.Before(first) {
					first = f
				}
				if l.After(last) {
					last = l
				}
			}
		}

		fmt.Fprintf(&sb, "  %s %s  %s\n",
			titleStyle.Render(fmt.Sprintf("building %-3d", n)),
			fmt.Sprintf("%d mains, %d appliances, %d circuits", e.Len(electric.Mains), e.Len(electric.Appliances), e.Len(electric.Circuits)),
			mutedStyle.Render(fmt.Sprintf("%s rows", formatNumber(int64(rows)))))
		if !first.IsZero() {
			fmt.Fprintf(&sb, "  %s %s → %s\n", mutedStyle.Render("            "),
				first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339))
		}
	}
	sb.WriteString(mutedStyle.Render(rule) + "\n")
	return sb.String()
}

// Report describes a finished command.
type Report struct {
	Operation string
	Output    string
	Buildings int
	Duration  time.Duration
}

// PrintReport prints results after a conversion.
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ "+strings.ToUpper(r.Operation)+" COMPLETE"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Buildings:"), titleStyle.Render(formatNumber(int64(r.Buildings))))

	if r.Output != "" {
		fmt.Fprintf(w, "  %s %s", mutedStyle.Render("Output:"), codeStyle.Render(r.Output))
		if size := dirSize(r.Output); size > 0 {
			fmt.Fprintf(w, " %s", mutedStyle.Render("("+formatBytes(size)+")"))
		}
		fmt.Fprintln(w)
	}

	if r.Duration > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(r.Duration)))
	}
	fmt.Fprintln(w)
}

// PrintError prints err with its code when it has one.
func PrintError(w io.Writer, err error) {
	code := nferrors.GetCode(err)
	prefix := "✗"
	if code != nferrors.CodeUnknown {
		prefix = "✗ " + string(code)
	}
	fmt.Fprintf(w, "  %s %s\n", accentStyle.Render(prefix), err.Error())
}

// ShowProgress creates a progress bar over buildings.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Progress returns a dataset progress hook that advances a bar writing to
// w. The bar is created on the first building, once the total is known.
func Progress(w io.Writer, description string) (dataset.ProgressFunc, func()) {
	var bar *progressbar.ProgressBar
	hook := func(building, done, total int) {
		if bar == nil {
			bar = ShowProgress(w, int64(total), description)
		}
		bar.Describe(fmt.Sprintf("%s building %d", description, building))
		_ = bar.Set(done + 1)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return hook, finish
}

// dirSize sums the sizes of all files under path.
func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
