// Package config holds the run configuration of fimwatch.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/logging"
	"fimwatch/internal/notify"
	"fimwatch/internal/walker"

	"gopkg.in/yaml.v2"
)

// StateDir is the per-root directory holding fimwatch state by default. It
// is never monitored.
const StateDir = ".fimwatch"

// BaselineConfig locates the baseline store.
type BaselineConfig struct {
	// Path defaults to <directory>/.fimwatch/baseline.json.
	Path string `yaml:"path"`
	// Backend is "json", "sqlite" or empty to pick by extension.
	Backend string `yaml:"backend"`
	// Retain is the number of previous baselines kept for history.
	Retain int `yaml:"retain"`
}

// Config is the configuration of a run. It is not modified once the run
// starts.
type Config struct {
	Directory string            `yaml:"directory"`
	Interval  time.Duration     `yaml:"interval"`
	Baseline  BaselineConfig    `yaml:"baseline"`
	Report    string            `yaml:"report"`
	Workers   int               `yaml:"workers"`
	Exclude   []string          `yaml:"exclude"`
	Listen    string            `yaml:"listen"`
	SMTP      notify.SMTPConfig `yaml:"smtp"`
	Log       logging.Config    `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Directory: ".",
		Interval:  10 * time.Second,
		Baseline:  BaselineConfig{Retain: 5},
		Log:       logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads a YAML document at path over the defaults. Unknown keys are an
// error.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadSMTP reads a standalone SMTP settings file. JSON documents are
// accepted, being valid YAML.
func LoadSMTP(path string) (notify.SMTPConfig, error) {
	var cfg notify.SMTPConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read smtp config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse smtp config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve makes paths absolute and fills derived defaults.
func (c *Config) Resolve() error {
	dir, err := filepath.Abs(c.Directory)
	if err != nil {
		return err
	}
	c.Directory = dir

	if c.Baseline.Path == "" {
		c.Baseline.Path = filepath.Join(dir, StateDir, "baseline.json")
	}
	for _, p := range []*string{&c.Baseline.Path, &c.Report, &c.Log.File} {
		if *p == "" {
			continue
		}
		if *p, err = filepath.Abs(*p); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration. Watch mode additionally requires an
// interval of at least one second.
func (c Config) Validate(watch bool) error {
	if strings.TrimSpace(c.Directory) == "" {
		return fmt.Errorf("directory is required")
	}
	if watch && c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1s (got %s)", c.Interval)
	}
	switch c.Baseline.Backend {
	case baseline.BackendAuto, baseline.BackendJSON, baseline.BackendSQLite:
	default:
		return fmt.Errorf("unknown baseline backend %q", c.Baseline.Backend)
	}
	if c.Baseline.Retain < 0 {
		return fmt.Errorf("baseline retain must not be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return c.SMTP.Validate()
}

// WalkOptions returns the traversal options of the run. The state directory
// at the root and any state file placed under the monitored directory are
// internal paths, pruned only at their exact location.
func (c Config) WalkOptions() walker.Options {
	internal := []string{StateDir}
	for _, p := range []string{c.Baseline.Path, c.Report, c.Log.File} {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(c.Directory, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		internal = append(internal, rel)
		if p != c.Baseline.Path {
			continue
		}
		// Stores keep sidecar files next to the baseline.
		if baseline.ResolveBackend(p, c.Baseline.Backend) == baseline.BackendSQLite {
			internal = append(internal, rel+"-wal", rel+"-shm", rel+"-journal")
		} else {
			internal = append(internal, rel+".next", path.Join(path.Dir(rel), baseline.HistoryDir))
		}
	}
	return walker.Options{
		Exclude:  append([]string(nil), c.Exclude...),
		Internal: internal,
	}
}
