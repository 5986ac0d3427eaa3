package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONLWriter streams one JSON document per line. Write and Skip are safe for
// concurrent use; lines reach the file in sequence order.
type JSONLWriter struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	queue *ordered[[]byte]
}

// NewJSONLWriter creates path and its directory.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory; %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s; %w", path, err)
	}

	w := &JSONLWriter{path: path, file: file, buf: bufio.NewWriter(file)}
	w.queue = newOrdered(64, func(line []byte) error {
		if _, err := w.buf.Write(line); err != nil {
			return err
		}
		return w.buf.WriteByte('\n')
	})
	return w, nil
}

// Path returns the file path.
func (w *JSONLWriter) Path() string { return w.path }

// Write encodes v and queues it as the line of item seq. An encoding error is
// returned to the caller and the item is skipped.
func (w *JSONLWriter) Write(seq int, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		w.queue.skip(seq)
		return fmt.Errorf("failed to encode line; %w", err)
	}
	w.queue.submit(seq, line)
	return nil
}

// Skip marks item seq as producing no line.
func (w *JSONLWriter) Skip(seq int) {
	w.queue.skip(seq)
}

// Close writes every queued line, flushes and closes the file.
func (w *JSONLWriter) Close() error {
	err := errors.Join(w.queue.close(), w.buf.Flush(), w.file.Close())
	if err != nil {
		return fmt.Errorf("failed to write %s; %w", w.path, err)
	}
	return nil
}

// Lines returns the number of lines written. Valid after Close.
func (w *JSONLWriter) Lines() int {
	return w.queue.emitted
}
