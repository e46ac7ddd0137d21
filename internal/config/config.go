package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"emptysweep/internal/exclude"
)

type LoggingCfg struct {
	File         string `yaml:"file" json:"file"`                   // Optional log file, stderr is always written
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type MetricsCfg struct {
	Textfile       string `yaml:"textfile" json:"textfile"`               // node_exporter textfile collector output
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"` // Prometheus Pushgateway base URL
	Job            string `yaml:"job" json:"job"`                         // Pushgateway job label
}

type Config struct {
	ExcludeDirs    []string   `yaml:"exclude_dirs" json:"exclude_dirs"`       // Replaces the default exclusion set when non-empty
	ExtraExcludes  []string   `yaml:"extra_excludes" json:"extra_excludes"`   // Appended to the exclusion set
	MatchMode      string     `yaml:"match_mode" json:"match_mode"`           // substring (default) or segment
	DryRun         bool       `yaml:"dry_run" json:"dry_run"`                 // Report candidates without deleting
	ProtectedPaths []string   `yaml:"protected_paths" json:"protected_paths"` // Never removed, even when empty
	DatabasePath   string     `yaml:"database_path" json:"database_path"`     // SQLite deletion history, disabled when empty
	Logging        LoggingCfg `yaml:"logging" json:"logging"`
	Metrics        MetricsCfg `yaml:"metrics" json:"metrics"`
}

var (
	errInvalidPath     = errors.New("path must be absolute")
	errEmptyExclude    = errors.New("exclude entries cannot be empty")
	errNegativeRotate  = errors.New("logging.rotation_days cannot be negative")
	errUnknownMatchKey = errors.New("match_mode is invalid")
)

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	// Defaults on an empty config cannot fail
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		// An empty file is a valid, all-defaults config
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if len(c.ExcludeDirs) == 0 {
		c.ExcludeDirs = append([]string(nil), exclude.DefaultNames...)
	}
	for _, name := range c.Excludes() {
		if name == "" {
			return errEmptyExclude
		}
	}

	mode, err := exclude.ParseMode(c.MatchMode)
	if err != nil {
		return fmt.Errorf("%w: %w", errUnknownMatchKey, err)
	}
	c.MatchMode = string(mode)

	// Set defaults for logging
	if c.Logging.RotationDays < 0 {
		return errNegativeRotate
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}
	if c.Logging.File != "" {
		cp, err := cleanAbsolute(c.Logging.File)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = cp
	}

	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		c.Metrics.Job = "emptysweep"
	}
	if c.Metrics.Textfile != "" {
		c.Metrics.Textfile = filepath.Clean(c.Metrics.Textfile)
	}

	if c.DatabasePath != "" {
		c.DatabasePath = filepath.Clean(c.DatabasePath)
	}

	cleaned := make([]string, 0, len(c.ProtectedPaths))
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		cleaned = append(cleaned, cp)
	}
	c.ProtectedPaths = cleaned

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// Excludes returns the effective exclusion names: ExcludeDirs then ExtraExcludes
func (c *Config) Excludes() []string {
	out := make([]string, 0, len(c.ExcludeDirs)+len(c.ExtraExcludes))
	out = append(out, c.ExcludeDirs...)
	return append(out, c.ExtraExcludes...)
}

// Filter builds the exclusion filter described by the config
func (c *Config) Filter() (*exclude.Filter, error) {
	mode, err := exclude.ParseMode(c.MatchMode)
	if err != nil {
		return nil, err
	}
	return exclude.New(c.Excludes(), mode)
}
