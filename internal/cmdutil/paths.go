// Package cmdutil holds helpers shared by the commands.
package cmdutil

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leefowlercu/cmxbatch/internal/config"
)

// UsageError is a command line that cannot be run. It maps to the usage
// exit code and is printed with the command usage.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// Usagef builds a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// IsUsage reports whether err is a UsageError.
func IsUsage(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

// ResolvePath expands "~" and returns an absolute, cleaned path.
// Empty input returns an empty string.
func ResolvePath(path string) (string, error) {
	expanded := config.ExpandPath(path)
	if expanded == "" {
		return "", nil
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q; %w", path, err)
	}

	return filepath.Clean(absPath), nil
}

// ResourcesDir resolves the -resourcesPath flag, which is mandatory.
func ResourcesDir(flag string) (string, error) {
	if flag == "" {
		return "", Usagef("-resourcesPath is required")
	}
	return ResolvePath(flag)
}
