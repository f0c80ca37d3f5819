// Package config loads application configuration from a YAML settings
// file with environment-variable overrides, mirroring read-only access
// through an interface so callers never depend on the source.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/stewardhq/steward/internal/domain/service/stopgate"
)

// Config provides read-only access to application configuration
type Config interface {
	DBPath() string          // SQLite database path (STEWARD_DB_PATH)
	GitHubToken() string     // API token (STEWARD_GITHUB_TOKEN)
	GitHubBaseURL() string   // API base URL (STEWARD_GITHUB_BASE_URL)
	AllowedRepos() []string  // Repository allow-list ("owner/repo")
	LockTTL() time.Duration  // Run lock lifetime
	IdemTTL() time.Duration  // Idempotency replay window
	StderrLevel() string     // Stderr log level (STEWARD_STDERR_LEVEL)
	MergeMethod() string     // PR merge method (merge, squash, rebase)
	Lawbook() stopgate.Lawbook

	ConfigSource() string // "yaml", "env", or "default"
	SettingPath() string  // Path to settings file if loaded
}

// fileSettings is the on-disk YAML shape
type fileSettings struct {
	DBPath        string   `yaml:"db_path"`
	GitHubToken   string   `yaml:"github_token"`
	GitHubBaseURL string   `yaml:"github_base_url"`
	AllowedRepos  []string `yaml:"allowed_repos"`
	LockTTLSec    int      `yaml:"lock_ttl_sec"`
	IdemTTLSec    int      `yaml:"idempotency_ttl_sec"`
	StderrLevel   string   `yaml:"stderr_level"`
	MergeMethod   string   `yaml:"merge_method"`
	Lawbook       *struct {
		MaxRerunsPerJob         int      `yaml:"max_reruns_per_job"`
		MaxTotalRerunsPerPR     int      `yaml:"max_total_reruns_per_pr"`
		MaxWaitMinutesForGreen  int      `yaml:"max_wait_minutes_for_green"`
		CooldownMinutes         int      `yaml:"cooldown_minutes"`
		NoSignalChangeThreshold int      `yaml:"no_signal_change_threshold"`
		BlockOnFailureClasses   []string `yaml:"block_on_failure_classes"`
	} `yaml:"lawbook"`
}

// AppConfig is the concrete implementation of Config
type AppConfig struct {
	dbPath        string
	githubToken   string
	githubBaseURL string
	allowedRepos  []string
	lockTTL       time.Duration
	idemTTL       time.Duration
	stderrLevel   string
	mergeMethod   string
	lawbook       stopgate.Lawbook

	configSource string
	settingPath  string
}

// DBPath returns the SQLite database path
func (c *AppConfig) DBPath() string { return c.dbPath }

// GitHubToken returns the API token
func (c *AppConfig) GitHubToken() string { return c.githubToken }

// GitHubBaseURL returns the API base URL
func (c *AppConfig) GitHubBaseURL() string { return c.githubBaseURL }

// AllowedRepos returns the repository allow-list
func (c *AppConfig) AllowedRepos() []string { return c.allowedRepos }

// LockTTL returns the run lock lifetime
func (c *AppConfig) LockTTL() time.Duration { return c.lockTTL }

// IdemTTL returns the idempotency replay window
func (c *AppConfig) IdemTTL() time.Duration { return c.idemTTL }

// StderrLevel returns the stderr log level
func (c *AppConfig) StderrLevel() string { return c.stderrLevel }

// MergeMethod returns the PR merge method
func (c *AppConfig) MergeMethod() string { return c.mergeMethod }

// Lawbook returns the stop-gate thresholds
func (c *AppConfig) Lawbook() stopgate.Lawbook { return c.lawbook }

// ConfigSource returns where configuration was loaded from
func (c *AppConfig) ConfigSource() string { return c.configSource }

// SettingPath returns the settings file path if one was loaded
func (c *AppConfig) SettingPath() string { return c.settingPath }

// Load builds configuration from defaults, then the YAML settings file at
// settingPath (if present on fs), then environment variables, in that
// order of increasing precedence.
func Load(fs afero.Fs, settingPath string) (*AppConfig, error) {
	cfg := &AppConfig{
		dbPath:       "steward.db",
		lockTTL:      5 * time.Minute,
		idemTTL:      time.Hour,
		stderrLevel:  "INFO",
		mergeMethod:  "squash",
		lawbook:      stopgate.DefaultLawbook(),
		configSource: "default",
	}

	if settingPath != "" {
		exists, err := afero.Exists(fs, settingPath)
		if err != nil {
			return nil, fmt.Errorf("check settings file: %w", err)
		}
		if exists {
			data, err := afero.ReadFile(fs, settingPath)
			if err != nil {
				return nil, fmt.Errorf("read settings file: %w", err)
			}
			var fileCfg fileSettings
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("parse settings file: %w", err)
			}
			applyFile(cfg, fileCfg)
			cfg.configSource = "yaml"
			cfg.settingPath = settingPath
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyFile(cfg *AppConfig, f fileSettings) {
	if f.DBPath != "" {
		cfg.dbPath = f.DBPath
	}
	if f.GitHubToken != "" {
		cfg.githubToken = f.GitHubToken
	}
	if f.GitHubBaseURL != "" {
		cfg.githubBaseURL = f.GitHubBaseURL
	}
	if len(f.AllowedRepos) > 0 {
		cfg.allowedRepos = f.AllowedRepos
	}
	if f.LockTTLSec > 0 {
		cfg.lockTTL = time.Duration(f.LockTTLSec) * time.Second
	}
	if f.IdemTTLSec > 0 {
		cfg.idemTTL = time.Duration(f.IdemTTLSec) * time.Second
	}
	if f.StderrLevel != "" {
		cfg.stderrLevel = f.StderrLevel
	}
	if f.MergeMethod != "" {
		cfg.mergeMethod = f.MergeMethod
	}
	if f.Lawbook != nil {
		lb := cfg.lawbook
		if f.Lawbook.MaxRerunsPerJob > 0 {
			lb.MaxRerunsPerJob = f.Lawbook.MaxRerunsPerJob
		}
		if f.Lawbook.MaxTotalRerunsPerPR > 0 {
			lb.MaxTotalRerunsPerPR = f.Lawbook.MaxTotalRerunsPerPR
		}
		if f.Lawbook.MaxWaitMinutesForGreen > 0 {
			lb.MaxWaitForGreen = time.Duration(f.Lawbook.MaxWaitMinutesForGreen) * time.Minute
		}
		if f.Lawbook.CooldownMinutes > 0 {
			lb.Cooldown = time.Duration(f.Lawbook.CooldownMinutes) * time.Minute
		}
		if f.Lawbook.NoSignalChangeThreshold > 0 {
			lb.NoSignalChangeThreshold = f.Lawbook.NoSignalChangeThreshold
		}
		if len(f.Lawbook.BlockOnFailureClasses) > 0 {
			lb.BlockOnFailureClasses = f.Lawbook.BlockOnFailureClasses
		}
		cfg.lawbook = lb
	}
}

func applyEnv(cfg *AppConfig) {
	overridden := false
	if v := os.Getenv("STEWARD_DB_PATH"); v != "" {
		cfg.dbPath = v
		overridden = true
	}
	if v := os.Getenv("STEWARD_GITHUB_TOKEN"); v != "" {
		cfg.githubToken = v
		overridden = true
	}
	if v := os.Getenv("STEWARD_GITHUB_BASE_URL"); v != "" {
		cfg.githubBaseURL = v
		overridden = true
	}
	if v := os.Getenv("STEWARD_STDERR_LEVEL"); v != "" {
		cfg.stderrLevel = v
		overridden = true
	}
	if v := os.Getenv("STEWARD_LOCK_TTL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.lockTTL = time.Duration(sec) * time.Second
			overridden = true
		}
	}
	if v := os.Getenv("STEWARD_IDEMPOTENCY_TTL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.idemTTL = time.Duration(sec) * time.Second
			overridden = true
		}
	}
	if overridden && cfg.configSource == "default" {
		cfg.configSource = "env"
	}
}
