package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// DefaultSeparator is the CSV field separator used by every task.
const DefaultSeparator = ';'

// utf8BOM lets spreadsheet tools detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures a CSVWriter.
type CSVOptions struct {
	// Separator is the field separator. Zero uses DefaultSeparator.
	Separator rune

	// BOM writes a UTF-8 byte order mark first.
	BOM bool

	// Header is written before any row when not empty.
	Header []string
}

// ParseSeparator converts a configured separator string to a rune.
func ParseSeparator(s string) (rune, error) {
	if s == "" {
		return DefaultSeparator, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid CSV separator %q", s)
	}
	return r, nil
}

// CSVWriter streams rows to a CSV file. Write and Skip are safe for
// concurrent use; rows reach the file in sequence order.
type CSVWriter struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	csv   *csv.Writer
	queue *ordered[[]string]
}

// NewCSVWriter creates path (and its directory) and writes the header.
func NewCSVWriter(path string, opts CSVOptions) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory; %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s; %w", path, err)
	}

	w := &CSVWriter{path: path, file: file, buf: bufio.NewWriter(file)}
	if opts.BOM {
		if _, err := w.buf.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write byte order mark; %w", err)
		}
	}

	w.csv = csv.NewWriter(w.buf)
	w.csv.Comma = opts.Separator
	if w.csv.Comma == 0 {
		w.csv.Comma = DefaultSeparator
	}

	if len(opts.Header) > 0 {
		if err := w.csv.Write(opts.Header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header; %w", err)
		}
	}

	w.queue = newOrdered(64, func(row []string) error {
		return w.csv.Write(row)
	})
	return w, nil
}

// Path returns the file path.
func (w *CSVWriter) Path() string { return w.path }

// Write queues the row of item seq.
func (w *CSVWriter) Write(seq int, row []string) {
	w.queue.submit(seq, row)
}

// Skip marks item seq as producing no row.
func (w *CSVWriter) Skip(seq int) {
	w.queue.skip(seq)
}

// Close writes every queued row, flushes and closes the file. It returns the
// first write error.
func (w *CSVWriter) Close() error {
	err := w.queue.close()

	w.csv.Flush()
	err = errors.Join(err, w.csv.Error(), w.buf.Flush(), w.file.Close())
	if err != nil {
		return fmt.Errorf("failed to write %s; %w", w.path, err)
	}
	return nil
}

// Rows returns the number of data rows written. Valid after Close.
func (w *CSVWriter) Rows() int {
	return w.queue.emitted
}
