// Package config loads lint-lab settings from defaults, an optional TOML file
// and LINTLAB_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/TheEditor/lintlab/pkg/codequality"
)

// FileName is the project config file looked up from the working directory upwards.
const FileName = ".lint-lab.toml"

// EnvPrefix prefixes environment overrides, e.g. LINTLAB_STATS_TOP_RULES.
const EnvPrefix = "LINTLAB"

// Config is the complete lint-lab configuration
type Config struct {
	ProjectRoot string         `mapstructure:"project_root"`
	Report      ReportConfig   `mapstructure:"report"`
	Severity    SeverityConfig `mapstructure:"severity"`
	Stats       StatsConfig    `mapstructure:"stats"`
	History     HistoryConfig  `mapstructure:"history"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// ReportConfig configures the Code Quality report
type ReportConfig struct {
	IncludeSuggestions bool `mapstructure:"include_suggestions"`
}

// SeverityConfig maps diagnostic levels and rules to Code Quality severities
type SeverityConfig struct {
	Error   string            `mapstructure:"error"`   // severity of level "error" (default: major)
	Rustfmt string            `mapstructure:"rustfmt"` // severity of formatting issues (default: minor)
	Rules   map[string]string `mapstructure:"rules"`   // rule id = severity, wins over the level
}

// StatsConfig configures the metrics produced by the stats command
type StatsConfig struct {
	TopRules  int    `mapstructure:"top_rules"` // 0 = every rule
	Namespace string `mapstructure:"namespace"`
	Lockfile  string `mapstructure:"lockfile"`
}

// HistoryConfig configures the optional issue history
type HistoryConfig struct {
	Path string `mapstructure:"path"` // empty = no history
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("project_root", ".")
	v.SetDefault("report.include_suggestions", true)
	v.SetDefault("severity.error", string(codequality.SeverityMajor))
	v.SetDefault("severity.rustfmt", string(codequality.SeverityMinor))
	v.SetDefault("severity.rules", map[string]string{})
	v.SetDefault("stats.top_rules", 0)
	v.SetDefault("stats.namespace", "")
	v.SetDefault("stats.lockfile", "Cargo.lock")
	v.SetDefault("history.path", "")
}

// Load reads the configuration. An explicit path must exist; otherwise the
// nearest .lint-lab.toml above the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path == "" {
		path = findProjectConfig()
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "config file %s", path),
			"omit --config to use "+FileName+" from the project")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config")
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, errors.Wrapf(err, "invalid config %s", path)
		}
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// findProjectConfig walks up from the working directory looking for FileName.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return errors.New("project_root cannot be empty (omit for the working directory)")
	}
	if _, err := codequality.ParseSeverity(c.Severity.Error); err != nil {
		return errors.Wrap(err, "severity.error")
	}
	if _, err := codequality.ParseSeverity(c.Severity.Rustfmt); err != nil {
		return errors.Wrap(err, "severity.rustfmt")
	}
	for rule, sev := range c.Severity.Rules {
		if _, err := codequality.ParseSeverity(sev); err != nil {
			return errors.Wrapf(err, "severity.rules.%s", rule)
		}
	}
	if c.Stats.TopRules < 0 {
		return errors.Newf("stats.top_rules must be >= 0, got %d", c.Stats.TopRules)
	}
	return nil
}
