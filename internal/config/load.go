package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: cmx.core.max-retry is read from
// CMXBATCH_CMX_CORE_MAX_RETRY.
const EnvPrefix = "CMXBATCH"

// PropertiesExt is the extension of the connection settings file.
const PropertiesExt = ".properties"

// ConfigError reports a configuration that cannot be used. It is always fatal
// and is raised before any network call.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration; %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s; %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads the single *.properties file of resourcesPath, applies defaults
// and environment overrides, and validates the result.
func Load(resourcesPath string) (*Config, error) {
	path, err := FindProperties(resourcesPath)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	cfg.ResourcesPath = resourcesPath
	return cfg, nil
}

// FindProperties returns the properties file of resourcesPath. Exactly one is
// expected.
func FindProperties(resourcesPath string) (string, error) {
	info, err := os.Stat(resourcesPath)
	if err != nil {
		return "", &ConfigError{Path: resourcesPath, Err: fmt.Errorf("failed to read resources directory; %w", err)}
	}
	if !info.IsDir() {
		return "", &ConfigError{Path: resourcesPath, Err: errors.New("resources path is not a directory")}
	}

	matches, err := filepath.Glob(filepath.Join(resourcesPath, "*"+PropertiesExt))
	if err != nil {
		return "", &ConfigError{Path: resourcesPath, Err: err}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &ConfigError{Path: resourcesPath, Err: fmt.Errorf("no %s file found", PropertiesExt)}
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = filepath.Base(m)
		}
		return "", &ConfigError{
			Path: resourcesPath,
			Err:  fmt.Errorf("found %d %s files (%s); keep exactly one", len(matches), PropertiesExt, strings.Join(names, ", ")),
		}
	}
}

// LoadFromPath reads configuration from a specific properties file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("properties")

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read properties; %w", err)}
	}

	cfg, err := unmarshalConfig(v)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg.Path = path
	cfg.ResourcesPath = filepath.Dir(path)
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)
	return v
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// unmarshalConfig converts viper config to the typed Config struct.
func unmarshalConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config; %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.CMX.MAAM.URL = strings.TrimSpace(cfg.CMX.MAAM.URL)
	cfg.CMX.Core.URL = strings.TrimRight(strings.TrimSpace(cfg.CMX.Core.URL), "/")
	cfg.CMX.Core.StoreID = strings.TrimSpace(cfg.CMX.Core.StoreID)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = ExpandPath(strings.TrimSpace(cfg.Log.File))

	var scopes []string
	for _, s := range cfg.CMX.MAAM.Scope {
		scopes = append(scopes, strings.Fields(s)...)
	}
	cfg.CMX.MAAM.Scope = scopes
}

// ExpandPath expands a leading ~ in path to the user's home directory.
// Only expands "~" alone or "~/..." patterns.
func ExpandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	return filepath.Join(home, path[2:])
}
