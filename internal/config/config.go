// Package config loads convex-doctor.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/viper"

	"github.com/phobologic/convex-doctor/internal/rules"
)

// FileName is the config file looked up in the project root.
const FileName = "convex-doctor.toml"

// DefaultIgnore is used when the config does not set ignore.files.
var DefaultIgnore = []string{"convex/_generated/**"}

var knownSections = []string{"rules", "ignore", "ci"}

// Config is the parsed convex-doctor configuration.
type Config struct {
	// Path is the file the config was read from, or "" for defaults.
	Path   string
	Rules  map[string]string
	Ignore Ignore
	CI     CI
}

// Ignore lists gitignore-style patterns, relative to the project root, for
// files that are never analyzed.
type Ignore struct {
	Files []string `mapstructure:"files"`
}

// CI holds settings for pipeline use.
type CI struct {
	// FailBelow makes the run fail when the score is lower. 0 disables it.
	FailBelow int `mapstructure:"fail_below"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Rules:  map[string]string{},
		Ignore: Ignore{Files: slices.Clone(DefaultIgnore)},
	}
}

// Load reads the config for the project at root. An explicit path must
// exist; the default <root>/convex-doctor.toml is optional. Unknown keys are
// reported on logger and otherwise ignored.
func Load(root, path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no config file", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("ignore.files", DefaultIgnore)
	v.SetDefault("ci.fail_below", 0)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{Path: path, Rules: v.GetStringMapString("rules")}
	if err := v.UnmarshalKey("ignore", &cfg.Ignore); err != nil {
		return nil, fmt.Errorf("parsing %s [ignore]: %w", path, err)
	}
	if err := v.UnmarshalKey("ci", &cfg.CI); err != nil {
		return nil, fmt.Errorf("parsing %s [ci]: %w", path, err)
	}
	if cfg.CI.FailBelow < 0 || cfg.CI.FailBelow > 100 {
		return nil, fmt.Errorf("%s: ci.fail_below must be between 0 and 100, got %d", path, cfg.CI.FailBelow)
	}

	warnUnknown(v, cfg, logger)
	logger.Debug("loaded config", "path", path, "rules", len(cfg.Rules), "ignore", cfg.Ignore.Files)
	return cfg, nil
}

func warnUnknown(v *viper.Viper, cfg *Config, logger *slog.Logger) {
	for _, key := range v.AllKeys() {
		section, _, _ := strings.Cut(key, ".")
		if !slices.Contains(knownSections, section) {
			logger.Warn("unknown config key", "key", key)
		}
	}
	ids := make([]string, 0, len(cfg.Rules))
	for id := range cfg.Rules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, ok := rules.Lookup(id); ok {
			continue
		}
		if s := rules.Suggest(id); s != "" {
			logger.Warn("unknown rule in config", "rule", id, "suggestion", s)
		} else {
			logger.Warn("unknown rule in config", "rule", id)
		}
	}
}

// RuleEnabled reports whether rule id should run. Only "off", "false" and
// "disabled" turn a rule off.
func (c *Config) RuleEnabled(id string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Rules[id])) {
	case "off", "false", "disabled":
		return false
	}
	return true
}

// IgnoreMatcher compiles the ignore patterns.
func (c *Config) IgnoreMatcher() *ignore.GitIgnore {
	return ignore.CompileIgnoreLines(c.Ignore.Files...)
}

// FailBelow returns the CI score threshold, 0 when unset.
func (c *Config) FailBelow() int {
	return c.CI.FailBelow
}
