package config

import "time"

// Config is the connection configuration read from the resources directory.
// It is built once per run and never modified afterwards.
type Config struct {
	CMX     CMXConfig     `yaml:"cmx" mapstructure:"cmx"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Path is the properties file the configuration was read from.
	Path string `yaml:"-" mapstructure:"-"`

	// ResourcesPath is the directory holding the properties and task files.
	ResourcesPath string `yaml:"-" mapstructure:"-"`
}

// CMXConfig groups the authorization server and document-store settings.
type CMXConfig struct {
	MAAM MAAMConfig `yaml:"maam" mapstructure:"maam"`
	Core CoreConfig `yaml:"core" mapstructure:"core"`
}

// MAAMConfig holds the client-credentials exchange settings.
type MAAMConfig struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	User        string        `yaml:"user" mapstructure:"user"`
	Password    string        `yaml:"password" mapstructure:"password"`
	Scope       []string      `yaml:"scope" mapstructure:"scope"`
	TokenMargin time.Duration `yaml:"token-margin" mapstructure:"token-margin"`
}

// CoreConfig holds the document-store settings.
type CoreConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	StoreID        string        `yaml:"storeid" mapstructure:"storeid"`
	NbThreads      int           `yaml:"nbThreads" mapstructure:"nbthreads"`
	MaxRetry       int           `yaml:"max-retry" mapstructure:"max-retry"`
	Profile        string        `yaml:"profile" mapstructure:"profile"`
	PageSize       int           `yaml:"page-size" mapstructure:"page-size"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ItemTimeout    time.Duration `yaml:"item-timeout" mapstructure:"item-timeout"`
	RetryBaseDelay time.Duration `yaml:"retry-base-delay" mapstructure:"retry-base-delay"`
	RetryMaxDelay  time.Duration `yaml:"retry-max-delay" mapstructure:"retry-max-delay"`
	RateLimit      float64       `yaml:"rate-limit" mapstructure:"rate-limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max-size" mapstructure:"max-size"`
	MaxBackups int    `yaml:"max-backups" mapstructure:"max-backups"`
}

// MetricsConfig holds the optional Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.CMX.MAAM.Password != "" {
		c.CMX.MAAM.Password = "********"
	}
	return c
}
