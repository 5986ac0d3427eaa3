package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leefowlercu/cmxbatch/internal/output"
)

// maxMessageWidth truncates error messages in the detail tables.
const maxMessageWidth = 80

// missingFileLabel stands for MissingFileMessage in the detail tables.
const missingFileLabel = "[missing file, normalized]"

// FolderStats aggregates the databases of one folder.
type FolderStats struct {
	Path string
	Counts
	Databases []Stats

	// Failed lists databases that could not be analyzed.
	Failed []string
}

// Report is the result of analyzing every discovered folder.
type Report struct {
	Folders []FolderStats
}

// Databases returns every analyzed database in folder order.
func (r Report) Databases() []Stats {
	var out []Stats
	for _, f := range r.Folders {
		out = append(out, f.Databases...)
	}
	return out
}

// Collect analyzes every database of folders. A database that cannot be
// analyzed is logged and left out of the totals.
func Collect(ctx context.Context, folders []Folder, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}

	var r Report
	for _, folder := range folders {
		fstats := FolderStats{Path: folder.Path}
		for _, path := range folder.Databases {
			if ctx.Err() != nil {
				break
			}
			logger.Info("analyzing database", "path", path)
			stats, err := Analyze(ctx, path)
			if err != nil {
				logger.Warn("database skipped", "path", path, "error", err)
				fstats.Failed = append(fstats.Failed, path)
				continue
			}
			fstats.Databases = append(fstats.Databases, stats)
			fstats.Counts.Add(stats.Counts)
		}
		r.Folders = append(r.Folders, fstats)
	}
	return r
}

var countHeader = table.Row{"Total", "is_done=1", "is_done=0", "cmx_document_id set", "is_done=0 with error"}

func countRow(first string, c Counts) table.Row {
	return table.Row{first, c.Total, c.Done, c.Pending, c.WithDocumentID, c.PendingErrors}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// Render writes the overview, the error detail of each database and the
// per-folder totals.
func Render(w io.Writer, r Report) {
	dbs := r.Databases()
	if len(dbs) == 0 {
		fmt.Fprintln(w, "No statistics could be collected.")
		return
	}

	overview := newTable(w, "Overview by database")
	overview.AppendHeader(append(table.Row{"Database"}, countHeader...))
	for _, s := range dbs {
		overview.AppendRow(countRow(s.Name, s.Counts))
	}
	overview.Render()

	for _, s := range dbs {
		if len(s.Errors) == 0 {
			continue
		}
		detail := newTable(w, "Errors in "+s.Name)
		detail.AppendHeader(table.Row{"Error message", "Occurrences"})
		for _, e := range s.Errors {
			detail.AppendRow(table.Row{displayMessage(e.Message), e.Count})
		}
		detail.Render()
	}

	folders := newTable(w, "Totals by folder")
	folders.AppendHeader(append(table.Row{"Folder"}, countHeader...))
	for _, f := range r.Folders {
		folders.AppendRow(countRow(f.Path, f.Counts))
	}
	folders.Render()
}

func displayMessage(msg string) string {
	if msg == MissingFileMessage {
		return missingFileLabel
	}
	r := []rune(msg)
	if len(r) > maxMessageWidth {
		return string(r[:maxMessageWidth-3]) + "..."
	}
	return msg
}

// ExportHeader is the header of the exported CSV file.
var ExportHeader = []string{
	"File système",
	"Database",
	"Total",
	"Total migré",
	"Total erreur",
	"Message d'erreur",
	"Total (par erreur)",
}

// Export writes one row per database and error message to path, labelled
// with fileSystem. A database without errors gets one row with an empty
// message.
func Export(path, fileSystem string, r Report) error {
	w, err := output.NewCSVWriter(path, output.CSVOptions{
		Separator: output.DefaultSeparator,
		BOM:       true,
		Header:    ExportHeader,
	})
	if err != nil {
		return err
	}

	seq := 0
	for _, s := range r.Databases() {
		base := []string{fileSystem, s.Path, strconv.Itoa(s.Total), strconv.Itoa(s.Done), strconv.Itoa(s.Pending)}
		if len(s.Errors) == 0 {
			w.Write(seq, append(base, "", "0"))
			seq++
			continue
		}
		for _, e := range s.Errors {
			row := append(append([]string(nil), base...), e.Message, strconv.Itoa(e.Count))
			w.Write(seq, row)
			seq++
		}
	}
	return w.Close()
}
