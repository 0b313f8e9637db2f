package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Resolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/app"
	cfg.Resolve()

	assert.Equal(t, "simpleorm.db", cfg.DatabaseFile)
	assert.Equal(t, "/var/lib/app/simpleorm.db", cfg.DatabasePath())
	assert.Equal(t, SettingsSQLite, cfg.Settings.Type)
	assert.Equal(t, cfg.DatabasePath(), cfg.Settings.Path)
	assert.NoError(t, cfg.Validate())
}

func TestResolve_Paths(t *testing.T) {
	cfg := &Config{DataDir: "/data", Settings: SettingsConfig{Type: SettingsBolt}}
	cfg.Resolve()
	assert.Equal(t, "simpleorm", cfg.Namespace)
	assert.Equal(t, "/data/settings.bolt", cfg.Settings.Path)

	cfg = &Config{DataDir: "/data", DatabaseFile: "/elsewhere/app.db"}
	cfg.Resolve()
	assert.Equal(t, "/elsewhere/app.db", cfg.DatabasePath())

	cfg = &Config{DataDir: "/data", Settings: SettingsConfig{Type: SettingsMemory}}
	cfg.Resolve()
	assert.Empty(t, cfg.Settings.Path)

	cfg = &Config{}
	cfg.Resolve()
	assert.Equal(t, "./data/simpleorm", cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }, "data_dir is required"},
		{"bad settings type", func(c *Config) { c.Settings.Type = "redis" }, "invalid settings type"},
		{"sqlite settings in memory", func(c *Config) {
			c.DatabaseFile = ":memory:"
			c.Settings.Path = ":memory:"
		}, "cannot share an in-memory database"},
		{"namespace with space", func(c *Config) { c.Namespace = "my app" }, "namespace must not contain whitespace"},
		{"namespace with underscore", func(c *Config) { c.Namespace = "my_app" }, "or underscores"},
		{"bad journal mode", func(c *Config) { c.SQLite.JournalMode = "FAST" }, "invalid sqlite.journal_mode"},
		{"negative busy timeout", func(c *Config) { c.SQLite.BusyTimeoutMs = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	cfg := DefaultConfig()
	cfg.SQLite.JournalMode = "delete"
	cfg.DatabaseFile = ":memory:"
	cfg.Settings.Type = SettingsMemory
	cfg.Resolve()
	assert.NoError(t, cfg.Validate(), "journal modes are case-insensitive and memory settings accept :memory:")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "simpleorm.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
data_dir: /srv/orm
namespace: com.example.app
settings:
  type: bolt
sqlite:
  busy_timeout_ms: 250
logging:
  quiet: true
`), 0644))

	cfg, err := LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/orm", cfg.DataDir)
	assert.Equal(t, "com.example.app", cfg.Namespace)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, SettingsBolt, cfg.Settings.Type)
	assert.Equal(t, 250, cfg.SQLite.BusyTimeoutMs)
	assert.Equal(t, "WAL", cfg.SQLite.JournalMode, "unset keys keep their defaults")
	assert.True(t, cfg.Logging.Quiet)

	jsonPath := filepath.Join(dir, "simpleorm.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"database_file": "app.db", "sqlite": {"stmt_cache_size": 8}}`), 0644))

	cfg, err = LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "app.db", cfg.DatabaseFile)
	assert.Equal(t, 8, cfg.SQLite.StmtCacheSize)
	assert.Equal(t, "./data/simpleorm", cfg.DataDir)

	tomlPath := filepath.Join(dir, "simpleorm.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("data_dir = 'x'"), 0644))
	_, err = LoadFromFile(tomlPath)
	assert.ErrorContains(t, err, "unsupported config file format")

	brokenPath := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(brokenPath, []byte("data_dir: [unterminated"), 0644))
	_, err = LoadFromFile(brokenPath)
	assert.ErrorContains(t, err, "failed to parse YAML config")

	_, err = LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SIMPLEORM_DATA_DIR", "/env/data")
	t.Setenv("SIMPLEORM_DATABASE_FILE", "env.db")
	t.Setenv("SIMPLEORM_NAMESPACE", "envns")
	t.Setenv("SIMPLEORM_SETTINGS_TYPE", "memory")
	t.Setenv("SIMPLEORM_SQLITE_JOURNAL_MODE", "DELETE")
	t.Setenv("SIMPLEORM_SQLITE_BUSY_TIMEOUT_MS", "42")
	t.Setenv("SIMPLEORM_SQLITE_STMT_CACHE_SIZE", "16")
	t.Setenv("SIMPLEORM_LOG_QUIET", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, "env.db", cfg.DatabaseFile)
	assert.Equal(t, "envns", cfg.Namespace)
	assert.Equal(t, SettingsMemory, cfg.Settings.Type)
	assert.Equal(t, "DELETE", cfg.SQLite.JournalMode)
	assert.Equal(t, 42, cfg.SQLite.BusyTimeoutMs)
	assert.Equal(t, 16, cfg.SQLite.StmtCacheSize)
	assert.True(t, cfg.Logging.Quiet)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Settings.Type = SettingsBolt
	cfg.Settings.Path = filepath.Join(base, "meta", "settings.bolt")
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, filepath.Join(base, "meta"))
}
