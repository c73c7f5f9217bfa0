package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path on top of DefaultConfig.
//
// The returned Config is always usable. A non-nil error means the file could
// not be applied and the defaults were kept; callers report it as a warning.
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return DefaultConfig(), fmt.Errorf("read config %s: %w", path, err)
	}

	raw, err := decode(path, data)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := apply(cfg, raw); err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			raw = map[string]any{}
			if jerr := json.Unmarshal(data, &raw); jerr != nil {
				return nil, fmt.Errorf("%v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func apply(cfg *Config, raw map[string]any) error {
	for key, value := range raw {
		var err error
		switch key {
		case "delay":
			cfg.Delay, err = seconds(key, value)
		case "random_delay":
			cfg.RandomDelay, err = seconds(key, value)
		case "timeout":
			cfg.Timeout, err = seconds(key, value)
		case "retry_backoff":
			cfg.RetryBackoff, err = seconds(key, value)
		case "retry_backoff_max":
			cfg.RetryBackoffMax, err = seconds(key, value)
		case "max_retries":
			cfg.MaxRetries, err = integer(key, value)
		case "workers":
			cfg.Workers, err = integer(key, value)
		case "max_body_size":
			cfg.MaxBodySize, err = integer(key, value)
		case "output_dir":
			cfg.OutputDir, err = str(key, value)
		case "url_column":
			cfg.URLColumn, err = str(key, value)
		case "metrics_addr":
			cfg.MetricsAddr, err = str(key, value)
		case "user_agents":
			cfg.UserAgents, err = stringList(key, value)
		case "headers":
			cfg.Headers, err = stringMap(key, value)
		default:
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]any)
			}
			cfg.Extra[key] = value
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func number(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func seconds(key string, v any) (time.Duration, error) {
	f, err := number(key, v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be finite", key)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func integer(key string, v any) (int, error) {
	f, err := number(key, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be a whole number, got %v", key, f)
	}
	return int(f), nil
}

func str(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func stringList(key string, v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %T", key, v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMap(key string, v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping, got %T", key, v)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a string, got %T", key, k, item)
		}
		out[k] = s
	}
	return out, nil
}
