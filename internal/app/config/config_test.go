package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, v := range []string{"STEWARD_DB_PATH", "STEWARD_GITHUB_TOKEN", "STEWARD_LOCK_TTL_SEC"} {
		t.Setenv(v, "")
	}

	cfg, err := Load(fs, "steward.yaml")
	require.NoError(t, err)

	assert.Equal(t, "steward.db", cfg.DBPath())
	assert.Equal(t, 5*time.Minute, cfg.LockTTL())
	assert.Equal(t, time.Hour, cfg.IdemTTL())
	assert.Equal(t, "INFO", cfg.StderrLevel())
	assert.Equal(t, "squash", cfg.MergeMethod())
	assert.Empty(t, cfg.AllowedRepos())
	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Empty(t, cfg.SettingPath())

	lb := cfg.Lawbook()
	assert.Equal(t, 3, lb.MaxRerunsPerJob)
	assert.Equal(t, 10, lb.MaxTotalRerunsPerPR)
	assert.Equal(t, 60*time.Minute, lb.MaxWaitForGreen)
}

func TestLoad_YAMLFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	settings := `
db_path: /var/lib/steward/state.db
github_token: ghp_test
allowed_repos:
  - acme/widgets
  - acme/gadgets
lock_ttl_sec: 120
idempotency_ttl_sec: 600
stderr_level: DEBUG
merge_method: rebase
lawbook:
  max_reruns_per_job: 5
  cooldown_minutes: 30
  block_on_failure_classes:
    - compile_error
`
	require.NoError(t, afero.WriteFile(fs, "steward.yaml", []byte(settings), 0o644))

	cfg, err := Load(fs, "steward.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/steward/state.db", cfg.DBPath())
	assert.Equal(t, "ghp_test", cfg.GitHubToken())
	assert.Equal(t, []string{"acme/widgets", "acme/gadgets"}, cfg.AllowedRepos())
	assert.Equal(t, 2*time.Minute, cfg.LockTTL())
	assert.Equal(t, 10*time.Minute, cfg.IdemTTL())
	assert.Equal(t, "DEBUG", cfg.StderrLevel())
	assert.Equal(t, "rebase", cfg.MergeMethod())
	assert.Equal(t, "yaml", cfg.ConfigSource())
	assert.Equal(t, "steward.yaml", cfg.SettingPath())

	lb := cfg.Lawbook()
	assert.Equal(t, 5, lb.MaxRerunsPerJob)
	assert.Equal(t, 30*time.Minute, lb.Cooldown)
	assert.Equal(t, []string{"compile_error"}, lb.BlockOnFailureClasses)
	// Unset lawbook fields keep their defaults
	assert.Equal(t, 10, lb.MaxTotalRerunsPerPR)
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "steward.yaml", []byte("github_token: ghp_only\n"), 0o644))

	cfg, err := Load(fs, "steward.yaml")
	require.NoError(t, err)

	assert.Equal(t, "ghp_only", cfg.GitHubToken())
	assert.Equal(t, "steward.db", cfg.DBPath())
	assert.Equal(t, 5*time.Minute, cfg.LockTTL())
}

func TestLoad_InvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "steward.yaml", []byte("db_path: [unclosed"), 0o644))

	_, err := Load(fs, "steward.yaml")
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "steward.yaml", []byte("db_path: from-file.db\n"), 0o644))
	t.Setenv("STEWARD_DB_PATH", "from-env.db")
	t.Setenv("STEWARD_LOCK_TTL_SEC", "45")

	cfg, err := Load(fs, "steward.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DBPath())
	assert.Equal(t, 45*time.Second, cfg.LockTTL())
	// File was still loaded, so the source stays yaml
	assert.Equal(t, "yaml", cfg.ConfigSource())
}

func TestLoad_EnvOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	t.Setenv("STEWARD_GITHUB_TOKEN", "ghp_env")

	cfg, err := Load(fs, "missing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "ghp_env", cfg.GitHubToken())
	assert.Equal(t, "env", cfg.ConfigSource())
}

func TestLoad_BadEnvDurationIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	t.Setenv("STEWARD_LOCK_TTL_SEC", "not-a-number")

	cfg, err := Load(fs, "missing.yaml")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL())
}
