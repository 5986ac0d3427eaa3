package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// validLogLevels lists recognized log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// MaxNbThreads bounds the worker count.
const MaxNbThreads = 256

// MaxPageSize bounds the search page size.
const MaxPageSize = 10000

// Validate checks the configuration for errors.
// Returns ValidationErrors if validation fails.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Authorization server
	if msg := checkURL(cfg.CMX.MAAM.URL); msg != "" {
		add("cmx.maam.url", "%s", msg)
	}
	if cfg.CMX.MAAM.User == "" {
		add("cmx.maam.user", "must not be empty")
	}
	if cfg.CMX.MAAM.Password == "" {
		add("cmx.maam.password", "must not be empty")
	}
	if cfg.CMX.MAAM.TokenMargin < 0 {
		add("cmx.maam.token-margin", "must be non-negative, got %s", cfg.CMX.MAAM.TokenMargin)
	}

	// Document store
	if msg := checkURL(cfg.CMX.Core.URL); msg != "" {
		add("cmx.core.url", "%s", msg)
	}
	if cfg.CMX.Core.StoreID == "" {
		add("cmx.core.storeid", "must not be empty")
	}
	if cfg.CMX.Core.NbThreads < 1 || cfg.CMX.Core.NbThreads > MaxNbThreads {
		add("cmx.core.nbThreads", "must be between 1 and %d, got %d", MaxNbThreads, cfg.CMX.Core.NbThreads)
	}
	if cfg.CMX.Core.MaxRetry < 0 {
		add("cmx.core.max-retry", "must be non-negative, got %d", cfg.CMX.Core.MaxRetry)
	}
	if cfg.CMX.Core.PageSize < 1 || cfg.CMX.Core.PageSize > MaxPageSize {
		add("cmx.core.page-size", "must be between 1 and %d, got %d", MaxPageSize, cfg.CMX.Core.PageSize)
	}
	if cfg.CMX.Core.Timeout <= 0 {
		add("cmx.core.timeout", "must be positive, got %s", cfg.CMX.Core.Timeout)
	}
	if cfg.CMX.Core.ItemTimeout < 0 {
		add("cmx.core.item-timeout", "must be non-negative, got %s", cfg.CMX.Core.ItemTimeout)
	}
	if cfg.CMX.Core.RetryBaseDelay <= 0 {
		add("cmx.core.retry-base-delay", "must be positive, got %s", cfg.CMX.Core.RetryBaseDelay)
	}
	if cfg.CMX.Core.RetryMaxDelay < cfg.CMX.Core.RetryBaseDelay {
		add("cmx.core.retry-max-delay", "must be at least retry-base-delay (%s), got %s",
			cfg.CMX.Core.RetryBaseDelay, cfg.CMX.Core.RetryMaxDelay)
	}
	if cfg.CMX.Core.RateLimit < 0 {
		add("cmx.core.rate-limit", "must be non-negative, got %g", cfg.CMX.Core.RateLimit)
	}

	// Logging
	if !validLogLevels[cfg.Log.Level] {
		add("log.level", "must be one of debug, info, warn, error; got %q", cfg.Log.Level)
	}
	if cfg.Log.MaxSizeMB < 1 {
		add("log.max-size", "must be at least 1 MB, got %d", cfg.Log.MaxSizeMB)
	}
	if cfg.Log.MaxBackups < 0 {
		add("log.max-backups", "must be non-negative, got %d", cfg.Log.MaxBackups)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkURL(raw string) string {
	if raw == "" {
		return "must not be empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("must be an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("missing host in %q", raw)
	}
	return ""
}
