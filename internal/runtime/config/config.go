// Package config holds the runtime settings of a kernel test session and
// loads them from defaults, an optional YAML file, KERNELTEST_ environment
// variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "KERNELTEST_"

// Defaults for an unset configuration.
const (
	DefaultEventsTransport  = "channel"
	DefaultFormat           = "json"
	DefaultMetricsNamespace = "kerneltest"
	DefaultLogLevel         = "info"
)

// Config groups the settings shared by every kernel of a session.
type Config struct {
	// EventsTransport selects the sink for container lifecycle events:
	// "channel" (in memory) or "io" (append-only file).
	EventsTransport string `koanf:"events_transport"`
	// EventsFile is the file the io transport writes to.
	EventsFile string `koanf:"events_file"`

	// Format names the boot log parser kernels use by default.
	Format string `koanf:"format"`
	// Persist enables boot log round trips and model stores.
	Persist bool `koanf:"persist"`
	// ControllerFactory selects the factory legacy kernels are built with.
	// Empty means the first registered factory.
	ControllerFactory string `koanf:"controller_factory"`
	// RegisterTransformers lets extensions register transformers.
	RegisterTransformers bool `koanf:"register_transformers"`
	// AttachmentGrabber keeps transformer attachments of the last operation.
	AttachmentGrabber bool `koanf:"attachment_grabber"`

	// MetricsNamespace prefixes the session metrics.
	MetricsNamespace string `koanf:"metrics_namespace"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `koanf:"log_level"`
}

// Getter methods to implement transport.Config interface.
func (c *Config) GetEventsTransport() string { return c.EventsTransport }
func (c *Config) GetEventsFile() string      { return c.EventsFile }

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Default returns the configuration Load starts from.
func Default() *Config {
	return &Config{
		EventsTransport:  DefaultEventsTransport,
		Format:           DefaultFormat,
		MetricsNamespace: DefaultMetricsNamespace,
		LogLevel:         DefaultLogLevel,
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Format == "" {
		errs = append(errs, errors.New("format: a boot log format is required"))
	}
	if strings.EqualFold(c.EventsTransport, "io") && c.EventsFile == "" {
		errs = append(errs, errors.New("events: io transport needs events_file"))
	}
	if c.MetricsNamespace == "" || strings.ContainsAny(c.MetricsNamespace, "-. ") {
		errs = append(errs, fmt.Errorf("metrics: invalid namespace %q", c.MetricsNamespace))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return rterrors.ErrConfigRequired
	}
	return rterrors.NewConfigValidationError(c.Validate())
}

// SlogLevel converts LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}

// Load builds a Config from defaults, then path when non-empty, then
// KERNELTEST_ environment variables, then the flags of fs that were set.
// The result is validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"events_transport":  defaults.EventsTransport,
		"format":            defaults.Format,
		"metrics_namespace": defaults.MetricsNamespace,
		"log_level":         defaults.LogLevel,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("kerneltest: load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("kerneltest: read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("kerneltest: load config env: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("kerneltest: load config flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("kerneltest: decode config: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
