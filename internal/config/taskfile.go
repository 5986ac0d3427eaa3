package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DecodeTaskFile decodes the JSON task file name of resourcesPath into v.
// Unknown fields are rejected. Every failure is a *ConfigError.
func DecodeTaskFile(resourcesPath, name string, v any) error {
	path := filepath.Join(resourcesPath, name)

	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("failed to read task file; %w", err)}
	}

	// Tolerate a UTF-8 byte order mark left by editors.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ConfigError{Path: path, Err: describeJSONError(data, err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &ConfigError{Path: path, Err: errors.New("unexpected data after the JSON document")}
	}
	return nil
}

func describeJSONError(data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := position(data, syntaxErr.Offset)
		return fmt.Errorf("malformed JSON at line %d, column %d; %w", line, col, err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("field %q must be %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return err
}

func position(data []byte, offset int64) (line, col int) {
	line, col = 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
