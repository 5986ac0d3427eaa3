// Package fsutil provides file helpers shared by the task outputs.
package fsutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxNameLen bounds the names returned by SafeName, well under the 255 byte
// limit of common file systems.
const maxNameLen = 128

// SafeName maps an arbitrary identifier to a file name made of ASCII
// letters, digits, '.', '-' and '_'. An identifier that is already such a
// name is returned unchanged. Otherwise the sanitized form gets a '-' and the
// first 12 hex digits of the SHA-256 of the identifier appended, so distinct
// identifiers never share a name. Names that would resolve to "." or ".."
// are prefixed with '_'.
func SafeName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	if name == id && strings.Trim(name, ".") != "" && len(name) <= maxNameLen {
		return name
	}
	if strings.Trim(name, ".") == "" {
		name = "_" + name
	}

	sum := sha256.Sum256([]byte(id))
	suffix := "-" + hex.EncodeToString(sum[:6])
	if len(name) > maxNameLen-len(suffix) {
		name = name[:maxNameLen-len(suffix)]
	}
	return name + suffix
}

// CopyAtomic streams r into dir/name. The file appears under its final name
// only once fully written; on error nothing is left behind.
func CopyAtomic(dir, name string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory; %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file; %w", err)
	}
	defer os.Remove(tmp.Name())

	src := &sourceReader{r: r}
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		if src.err != nil {
			return n, &CopyError{Err: src.err}
		}
		return n, fmt.Errorf("failed to write file; %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return n, fmt.Errorf("failed to set file mode; %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to write file; %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return n, fmt.Errorf("failed to rename file; %w", err)
	}
	return n, nil
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory.
func WriteFileAtomic(path string, data []byte) error {
	_, err := CopyAtomic(filepath.Dir(path), filepath.Base(path), bytes.NewReader(data))
	return err
}

// CopyError is returned by CopyAtomic when reading the source failed, as
// opposed to writing the destination.
type CopyError struct {
	Err error
}

func (e *CopyError) Error() string { return fmt.Sprintf("failed to read source; %v", e.Err) }

func (e *CopyError) Unwrap() error { return e.Err }

// sourceReader remembers the read error so that CopyAtomic can tell it apart
// from a write error.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
