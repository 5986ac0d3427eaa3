// Package report renders run results for the terminal and persists them as
// YAML next to the task output.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/cmxbatch/internal/fsutil"
	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

// maxReasonWidth truncates failure reasons in the terminal table.
const maxReasonWidth = 100

// Render writes a human-readable summary of res to w.
func Render(w io.Writer, res tasks.Result) {
	style, icon := StateStyle(res.State)
	status := style.Render(fmt.Sprintf("%s %s %s", icon, res.Task, res.State))
	if res.Reason != "" {
		status += " " + MutedText.Render("("+res.Reason+")")
	}
	fmt.Fprintln(w, status)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Succeeded", "Failed", "Skipped", "Retries", "Duration"})
	t.AppendRow(table.Row{
		res.RunID,
		res.Summary.Succeeded,
		res.Summary.Failed,
		res.Summary.Skipped,
		res.Summary.Retries,
		res.Duration().Round(time.Millisecond).String(),
	})
	t.Render()

	if len(res.Summary.Failures) > 0 {
		f := table.NewWriter()
		f.SetOutputMirror(w)
		f.SetStyle(table.StyleLight)
		f.Style().Format.Footer = text.FormatDefault
		f.SetTitle("First failures")
		f.AppendHeader(table.Row{"Item", "Attempts", "Reason"})
		for _, failure := range res.Summary.Failures {
			f.AppendRow(table.Row{failure.Item, failure.Attempts, truncate(failure.Reason, maxReasonWidth)})
		}
		if more := res.Summary.Failed - len(res.Summary.Failures); more > 0 {
			f.AppendFooter(table.Row{"", "", "and " + strconv.Itoa(more) + " more"})
		}
		f.Render()
	}

	for _, file := range res.Files {
		fmt.Fprintln(w, MutedText.Render("output: "+file))
	}
}

// Path returns where the report of res is written: next to its first output
// file, or in fallbackDir when the run produced none.
func Path(res tasks.Result, fallbackDir string) string {
	dir := fallbackDir
	if len(res.Files) > 0 {
		dir = filepath.Dir(res.Files[0])
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.report.yaml", res.Task, res.RunID))
}

// WriteYAML writes res to path.
func WriteYAML(path string, res tasks.Result) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode run report; %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write run report; %w", err)
	}
	return nil
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
