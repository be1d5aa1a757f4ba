// Package config loads the settings shared by the qkd command line tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alan-christopher/qkd/qkd"
	"gopkg.in/yaml.v3"
)

// Config holds the parameters of a simulation run.
type Config struct {
	// Protocol is one of b92, bb84 or e91. The command line tools select it
	// with a subcommand, which takes precedence.
	Protocol string `toml:"protocol" json:"protocol" yaml:"protocol"`

	// Transmissions is the number of carriers used when bases and bits are
	// drawn at random rather than entered.
	Transmissions int `toml:"transmissions" json:"transmissions" yaml:"transmissions"`

	// NoiseProbability is the chance that a BB84 measurement outcome flips.
	NoiseProbability float64 `toml:"noise_probability" json:"noise_probability" yaml:"noise_probability"`

	// BellState names the entangled state E91 pairs are prepared in.
	BellState string `toml:"bell_state" json:"bell_state" yaml:"bell_state"`

	// BellBound is the threshold the E91 Bell statistic must exceed.
	BellBound float64 `toml:"bell_bound" json:"bell_bound" yaml:"bell_bound"`

	// Seed seeds every random choice. Zero picks a seed from the clock.
	Seed int64 `toml:"seed" json:"seed" yaml:"seed"`

	LogLevel  string `toml:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format" yaml:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Protocol:      string(qkd.BB84),
		Transmissions: qkd.DefaultTransmissions,
		BellState:     qkd.DefaultBellState.String(),
		BellBound:     qkd.ClassicalBound,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads the configuration at path, choosing a decoder by extension.
// Settings the file leaves out keep their defaults, and a missing file
// yields Default. An empty path also yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from QKD_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("QKD_PROTOCOL"); v != "" {
		c.Protocol = v
	}
	if v := os.Getenv("QKD_TRANSMISSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QKD_TRANSMISSIONS: %w", err)
		}
		c.Transmissions = n
	}
	if v := os.Getenv("QKD_NOISE_PROBABILITY"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("QKD_NOISE_PROBABILITY: %w", err)
		}
		c.NoiseProbability = p
	}
	if v := os.Getenv("QKD_BELL_STATE"); v != "" {
		c.BellState = v
	}
	if v := os.Getenv("QKD_SEED"); v != "" {
		s, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("QKD_SEED: %w", err)
		}
		c.Seed = s
	}
	if v := os.Getenv("QKD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("QKD_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

// A ValidationError names a setting and what is wrong with it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem Validate found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting, reporting all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	if _, err := qkd.ParseProtocol(c.Protocol); err != nil {
		errs = append(errs, ValidationError{"protocol", err.Error()})
	}
	if c.Transmissions <= 0 {
		errs = append(errs, ValidationError{"transmissions", fmt.Sprintf("must be positive, got %d", c.Transmissions)})
	}
	if _, err := qkd.NewNoise(c.NoiseProbability); err != nil {
		errs = append(errs, ValidationError{"noise_probability", err.Error()})
	}
	if _, err := qkd.ParseBellState(c.BellState); err != nil {
		errs = append(errs, ValidationError{"bell_state", err.Error()})
	}
	if c.BellBound < 0 {
		errs = append(errs, ValidationError{"bell_bound", fmt.Sprintf("must not be negative, got %v", c.BellBound)})
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"log_format", fmt.Sprintf("unknown format %q", c.LogFormat)})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
