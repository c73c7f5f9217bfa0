package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of name when it is set and non-empty.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses name as an integer.
func EnvInt(name string) (int, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return n, true, nil
}

// EnvSeconds parses name as a (possibly fractional) number of seconds.
func EnvSeconds(name string) (time.Duration, bool, error) {
	value, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return time.Duration(f * float64(time.Second)), true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto c.
func ApplyEnv(c *Config) error {
	if d, ok, err := EnvSeconds("SCRAPER_DELAY"); err != nil {
		return err
	} else if ok {
		c.Delay = d
	}
	if d, ok, err := EnvSeconds("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = d
	}
	if n, ok, err := EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.MaxRetries = n
	}
	if n, ok, err := EnvInt("SCRAPER_WORKERS"); err != nil {
		return err
	} else if ok {
		c.Workers = n
	}
	if v, ok := EnvString("SCRAPER_OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}
