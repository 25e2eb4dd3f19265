// Package config loads the static bot configuration: runtime settings
// from KELVIN_* environment variables and the service/middleware
// instantiation descriptors from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var (
	// ErrDuplicateServiceID reports two service blocks sharing an id.
	ErrDuplicateServiceID = errors.New("duplicate service id")

	// ErrDuplicateMiddleware reports two middleware blocks sharing a name.
	ErrDuplicateMiddleware = errors.New("duplicate middleware name")

	// ErrUnknownMiddleware reports a pipeline referencing an undefined
	// middleware name.
	ErrUnknownMiddleware = errors.New("pipeline references undefined middleware")
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings are process-level knobs, overridable from the environment.
type Settings struct {
	ConfigPath    string        `env:"KELVIN_CONFIG" envDefault:"kelvin.yaml"`
	LogLevel      string        `env:"KELVIN_LOG_LEVEL" envDefault:"info"`
	DataDirectory string        `env:"KELVIN_DATA_DIR" envDefault:"data"`
	EventBuffer   int           `env:"KELVIN_EVENT_BUFFER" envDefault:"256"`
	CommandBuffer int           `env:"KELVIN_COMMAND_BUFFER" envDefault:"256"`
	ShutdownGrace time.Duration `env:"KELVIN_SHUTDOWN_GRACE" envDefault:"10s"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// ServiceSpec is the instantiation descriptor for one service.
type ServiceSpec struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// Middleware is the ordered pipeline of middleware names applied to
	// this service's events.
	Middleware []string `yaml:"middleware"`

	// Options holds kind-specific settings, decoded by the adapter's
	// constructor.
	Options yaml.Node `yaml:"options"`
}

// DecodeOptions unmarshals the kind-specific options into out. A missing
// options block leaves out untouched.
func (s ServiceSpec) DecodeOptions(out interface{}) error {
	if s.Options.IsZero() {
		return nil
	}
	return s.Options.Decode(out)
}

// MiddlewareSpec is the instantiation descriptor for one middleware.
type MiddlewareSpec struct {
	Name    string    `yaml:"name"`
	Kind    string    `yaml:"kind"`
	Options yaml.Node `yaml:"options"`
}

// DecodeOptions unmarshals the kind-specific options into out.
func (m MiddlewareSpec) DecodeOptions(out interface{}) error {
	if m.Options.IsZero() {
		return nil
	}
	return m.Options.Decode(out)
}

// Config is the full set of instantiation descriptors.
type Config struct {
	Services    []ServiceSpec    `yaml:"services"`
	Middlewares []MiddlewareSpec `yaml:"middlewares"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the descriptors for the configuration errors that must
// abort startup: duplicate ids, duplicate middleware names, and pipelines
// referencing middlewares that are not defined.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Middlewares))
	for _, mw := range c.Middlewares {
		if mw.Name == "" {
			return errors.New("middleware with empty name")
		}
		if mw.Kind == "" {
			return fmt.Errorf("middleware %q has no kind", mw.Name)
		}
		if names[mw.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateMiddleware, mw.Name)
		}
		names[mw.Name] = true
	}

	ids := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		if svc.ID == "" {
			return errors.New("service with empty id")
		}
		if svc.Kind == "" {
			return fmt.Errorf("service %q has no kind", svc.ID)
		}
		if ids[svc.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateServiceID, svc.ID)
		}
		ids[svc.ID] = true
		for _, name := range svc.Middleware {
			if !names[name] {
				return fmt.Errorf("%w: service %q references %q", ErrUnknownMiddleware, svc.ID, name)
			}
		}
	}
	return nil
}
