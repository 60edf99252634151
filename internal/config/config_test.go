package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remoteplay.yml")
	data := []byte(`
host: 192.168.1.50
jpeg_quality: 95
input_ratelimit: 25ms
preview_addr: "127.0.0.1:8080"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Host != "192.168.1.50" {
		t.Errorf("host: got %q", cfg.Host)
	}
	if cfg.JPEGQuality != 95 {
		t.Errorf("quality: got %d", cfg.JPEGQuality)
	}
	if cfg.InputRateLimit != 25*time.Millisecond {
		t.Errorf("rate limit: got %v", cfg.InputRateLimit)
	}
	if cfg.InputPollRate != Default().InputPollRate {
		t.Errorf("poll rate should keep its default, got %v", cfg.InputPollRate)
	}
	if cfg.PreviewAddr != "127.0.0.1:8080" {
		t.Errorf("preview: got %q", cfg.PreviewAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"quality too low", func(c *Config) { c.JPEGQuality = 5 }, ErrQuality},
		{"quality too high", func(c *Config) { c.JPEGQuality = 101 }, ErrQuality},
		{"qos", func(c *Config) { c.QoS = 200 }, ErrQoS},
		{"priority", func(c *Config) { c.Priority = 2 }, ErrPriority},
		{"zero poll", func(c *Config) { c.InputPollRate = 0 }, ErrInterval},
		{"bad host is not a config error", func(c *Config) { c.Host = "not-an-ip" }, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}
