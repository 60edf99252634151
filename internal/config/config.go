// Package config loads the session parameters from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrQuality  = errors.New("config: jpeg_quality must be between 10 and 100")
	ErrQoS      = errors.New("config: qos must be at most 127")
	ErrPriority = errors.New("config: priority must be 0 (bottom) or 1 (top)")
	ErrInterval = errors.New("config: input intervals must be positive")
)

// Config stores every parameter the engine consumes, plus the CLI extras.
type Config struct {
	Host           string        `yaml:"host"`            // device IPv4 address
	Priority       uint8         `yaml:"priority"`        // surface the device favours
	PriorityFactor uint8         `yaml:"priority_factor"` // how strongly it favours it
	JPEGQuality    uint8         `yaml:"jpeg_quality"`
	QoS            uint8         `yaml:"qos"`
	InputRateLimit time.Duration `yaml:"input_ratelimit"` // minimum gap between input packets
	InputPollRate  time.Duration `yaml:"input_pollrate"`  // idle check interval
	PreviewAddr    string        `yaml:"preview_addr"`    // empty disables the preview relay
	Record         string        `yaml:"record"`          // empty disables frame capture
	Debug          bool          `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Host:           "",
		Priority:       1,
		PriorityFactor: 5,
		JPEGQuality:    80,
		QoS:            18,
		InputRateLimit: 16 * time.Millisecond,
		InputPollRate:  2 * time.Millisecond,
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges. The host is deliberately not checked here: an
// invalid host is reported through the session state instead.
func (c Config) Validate() error {
	var errs []error
	if c.JPEGQuality < 10 || c.JPEGQuality > 100 {
		errs = append(errs, ErrQuality)
	}
	if c.QoS > 127 {
		errs = append(errs, ErrQoS)
	}
	if c.Priority > 1 {
		errs = append(errs, ErrPriority)
	}
	if c.InputRateLimit <= 0 || c.InputPollRate <= 0 {
		errs = append(errs, ErrInterval)
	}
	return errors.Join(errs...)
}
