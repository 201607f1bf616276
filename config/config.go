// Package config loads and normalizes tap configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Tunable bounds. Out-of-range operator input degrades to these instead of
// aborting a scheduled run.
const (
	DefaultPageSize = 120
	DefaultMaxPages = 1
	MaxPagesCap     = 10

	DefaultMinWait = 2 * time.Second
	DefaultMaxWait = 5 * time.Second
	WaitFloor      = 2 * time.Second
	WaitCeiling    = 20 * time.Second

	DefaultSearchTermField = "search_term"
	DefaultSKUField        = "sku"
)

// Feed describes a remote document supplying search terms dynamically.
type Feed struct {
	URL             string
	SearchTermField string
	SKUField        string
}

// Config holds the normalized per-run configuration.
type Config struct {
	SearchTerms  []string
	Feed         *Feed
	PageSize     int
	MaxPages     int
	MinWait      time.Duration
	MaxWait      time.Duration
	ExcludeTerms []string

	// Runtime knobs set from flags, not from the tap config document.
	UserAgent    string
	Timeout      time.Duration
	OutputFile   string
	OutputFormat string // stdout, file, or dual
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns the tunable defaults applied when keys are absent
// or malformed.
func DefaultConfig() *Config {
	return &Config{
		PageSize:     DefaultPageSize,
		MaxPages:     DefaultMaxPages,
		MinWait:      DefaultMinWait,
		MaxWait:      DefaultMaxWait,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Timeout:      10 * time.Second,
		OutputFormat: "stdout",
	}
}

// Load reads a tap config document. The document is kept as a loose map so
// normalization can tolerate wrong value types key by key.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return raw, nil
}

// Normalize maps a raw config document onto a Config. It never fails:
// missing keys, wrong types, and out-of-range values all fall back to the
// nearest valid default or bound.
func Normalize(raw map[string]any) *Config {
	cfg := DefaultConfig()

	if ps, ok := intKey(raw, "page_size"); ok {
		if ps == 60 || ps == 120 || ps == 240 {
			cfg.PageSize = ps
		}
	}

	if mp, ok := intKey(raw, "max_pages"); ok {
		if mp < 1 {
			mp = 1
		}
		if mp > MaxPagesCap {
			mp = MaxPagesCap
		}
		cfg.MaxPages = mp
	}

	// The wait window is validated as a pair: one bad bound resets both.
	minWait, okMin := durationKey(raw, "min_wait")
	maxWait, okMax := durationKey(raw, "max_wait")
	if okMin && okMax && minWait >= WaitFloor && maxWait >= minWait && maxWait <= WaitCeiling {
		cfg.MinWait = minWait
		cfg.MaxWait = maxWait
	}

	cfg.SearchTerms = stringsKey(raw, "search_terms")
	cfg.ExcludeTerms = stringsKey(raw, "exclude_terms")
	cfg.Feed = feedKey(raw)

	return cfg
}

// Validate checks the startup-fatal requirements. Everything else degrades
// silently during Normalize.
func (c *Config) Validate() error {
	if len(c.SearchTerms) == 0 && c.Feed == nil {
		return fmt.Errorf("config must provide search_terms or a feed")
	}
	if c.Feed != nil && c.Feed.URL == "" {
		return fmt.Errorf("feed config must provide a url")
	}
	if c.OutputFormat != "stdout" && c.OutputFormat != "file" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be stdout, file, or dual")
	}
	if c.OutputFormat != "stdout" && c.OutputFile == "" {
		return fmt.Errorf("output file is required for %s format", c.OutputFormat)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func intKey(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	}
	return 0, false
}

func durationKey(raw map[string]any, key string) (time.Duration, bool) {
	switch v := raw[key].(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case int:
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

func stringsKey(raw map[string]any, key string) []string {
	items, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func feedKey(raw map[string]any) *Feed {
	doc, ok := raw["feed"].(map[string]any)
	if !ok {
		return nil
	}
	feed := &Feed{
		SearchTermField: DefaultSearchTermField,
		SKUField:        DefaultSKUField,
	}
	if url, ok := doc["url"].(string); ok {
		feed.URL = url
	}
	if name, ok := doc["search_term_field_name"].(string); ok && name != "" {
		feed.SearchTermField = name
	}
	if name, ok := doc["sku_field_name"].(string); ok && name != "" {
		feed.SKUField = name
	}
	return feed
}

// EnvString reads an environment override.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
