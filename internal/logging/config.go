package logging

import (
	"fmt"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format selects the encoder: json or console.
	Format string `koanf:"format"`
	// Output is the write target: stdout or stderr.
	Output string `koanf:"output"`
	// Fields are constant key/value pairs attached to every entry.
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: level %q", ErrInvalidConfig, c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidConfig, c.Format)
	}
	switch c.Output {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("%w: output %q", ErrInvalidConfig, c.Output)
	}
	return nil
}
