package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults for the download pipeline. The worker count and timeouts match
// the values the origin servers are known to tolerate.
const (
	DefaultWorkers        = 25
	DefaultRequestTimeout = 15 * time.Second
	DefaultRetries        = 3
)

// Config holds the fully processed application configuration.
type Config struct {
	// Workers is the size of the segment download pool.
	Workers int
	// RequestTimeout bounds every individual HTTP request.
	RequestTimeout time.Duration
	// Retries is the per-request attempt budget, including the first attempt.
	Retries int
	// Headers is the fixed browser-like header profile applied to every
	// outgoing request.
	Headers map[string]string
}

// rawConfig is used for intermediate unmarshaling from the JSON file.
// Durations are expressed in seconds to keep the file format simple.
type rawConfig struct {
	Workers               int               `json:"Workers"`
	RequestTimeoutSeconds int               `json:"RequestTimeoutSeconds"`
	Retries               int               `json:"Retries"`
	Headers               map[string]string `json:"Headers"`
}

// Default returns the built-in configuration with the interactive browser
// header profile.
func Default() *Config {
	return &Config{
		Workers:        DefaultWorkers,
		RequestTimeout: DefaultRequestTimeout,
		Retries:        DefaultRetries,
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"Origin":          "https://iframe.mediadelivery.net",
			"Referer":         "https://iframe.mediadelivery.net/",
		},
	}
}

// Load reads an optional JSON configuration file and overlays it on the
// defaults. Only fields present in the file override the built-ins.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	if raw.Workers != 0 {
		cfg.Workers = raw.Workers
	}
	if raw.RequestTimeoutSeconds != 0 {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeoutSeconds) * time.Second
	}
	if raw.Retries != 0 {
		cfg.Retries = raw.Retries
	}
	for k, v := range raw.Headers {
		cfg.Headers[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("invalid worker count %d: must be at least 1", c.Workers)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout %v: must be positive", c.RequestTimeout)
	}
	if c.Retries < 1 {
		return fmt.Errorf("invalid retry budget %d: must be at least 1", c.Retries)
	}
	return nil
}
