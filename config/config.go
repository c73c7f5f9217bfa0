package config

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"
)

// DefaultConfigFile is read when no config path is given.
const DefaultConfigFile = "config.json"

// Config holds scraper configuration.
type Config struct {
	Delay           time.Duration
	RandomDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Workers         int
	MaxBodySize     int
	OutputDir       string
	URLColumn       string
	UserAgents      []string
	Headers         map[string]string
	MetricsAddr     string

	// Extra keeps keys from the config file that are not recognized.
	Extra map[string]any
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Delay:           time.Second,
		RandomDelay:     0,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		Workers:         1,
		MaxBodySize:     10 * 1024 * 1024,
		OutputDir:       "output",
		URLColumn:       "url",
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		},
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.UserAgents = slices.Clone(c.UserAgents)
	out.Headers = maps.Clone(c.Headers)
	out.Extra = maps.Clone(c.Extra)
	return &out
}

// Header returns the configured default header set.
func (c *Config) Header() http.Header {
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.URLColumn == "" {
		return fmt.Errorf("url column cannot be empty")
	}
	if len(c.UserAgents) == 0 {
		return fmt.Errorf("user agents cannot be empty")
	}
	for i, ua := range c.UserAgents {
		if ua == "" {
			return fmt.Errorf("user agent %d is empty", i)
		}
	}
	return nil
}
