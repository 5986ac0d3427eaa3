package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultTokenMargin    = 30 * time.Second
	DefaultNbThreads      = 4
	DefaultMaxRetry       = 3
	DefaultPageSize       = 100
	DefaultTimeout        = 60 * time.Second
	DefaultItemTimeout    = 2 * time.Minute
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 30 * time.Second

	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 5
)

// setViperDefaults registers every default with v. Registering a key also
// makes it visible to environment overrides.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("cmx.maam.url", "")
	v.SetDefault("cmx.maam.user", "")
	v.SetDefault("cmx.maam.password", "")
	v.SetDefault("cmx.maam.scope", []string{})
	v.SetDefault("cmx.maam.token-margin", DefaultTokenMargin)

	v.SetDefault("cmx.core.url", "")
	v.SetDefault("cmx.core.storeid", "")
	v.SetDefault("cmx.core.nbthreads", DefaultNbThreads)
	v.SetDefault("cmx.core.max-retry", DefaultMaxRetry)
	v.SetDefault("cmx.core.profile", "")
	v.SetDefault("cmx.core.page-size", DefaultPageSize)
	v.SetDefault("cmx.core.timeout", DefaultTimeout)
	v.SetDefault("cmx.core.item-timeout", DefaultItemTimeout)
	v.SetDefault("cmx.core.retry-base-delay", DefaultRetryBaseDelay)
	v.SetDefault("cmx.core.retry-max-delay", DefaultRetryMaxDelay)
	v.SetDefault("cmx.core.rate-limit", 0)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size", DefaultLogMaxSizeMB)
	v.SetDefault("log.max-backups", DefaultLogMaxBackups)

	v.SetDefault("metrics.addr", "")
}
