package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no stray sfsync.yml or .env is read
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "salesforce_meta", cfg.Database.Name)
	assert.Equal(t, "sf", cfg.Salesforce.CLIPath)
	assert.Equal(t, "59.0", cfg.Salesforce.APIVersion)
	assert.True(t, cfg.Sync.Fields)
	assert.True(t, cfg.Sync.FieldUsage)
	assert.True(t, cfg.Sync.Flows)
	assert.False(t, cfg.Sync.KeepFlowFiles)
	assert.Equal(t, "sf_flows", cfg.Sync.FlowOutputDir)
	assert.Equal(t, 2*time.Hour, cfg.Redis.LockTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SQL_DRIVER", "mysql")
	t.Setenv("SQL_SERVER", "db.internal")
	t.Setenv("SQL_PORT", "3307")
	t.Setenv("SQL_DATABASE", "crm_meta")
	t.Setenv("SQL_USERNAME", "sync")
	t.Setenv("SQL_PASSWORD", "secret")
	t.Setenv("SALESFORCE_ORG", "prod")
	t.Setenv("SF_CLI", "/opt/sf/bin/sf")
	t.Setenv("SYNC_FIELD_USAGE", "false")
	t.Setenv("KEEP_FLOW_FILES", "true")
	t.Setenv("VERBOSE_FLOW_LOGGING", "true")
	t.Setenv("RUN_LOCK_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "crm_meta", cfg.Database.Name)
	assert.Equal(t, "sync", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "prod", cfg.Salesforce.Org)
	assert.Equal(t, "/opt/sf/bin/sf", cfg.Salesforce.CLIPath)
	assert.False(t, cfg.Sync.FieldUsage)
	assert.True(t, cfg.Sync.KeepFlowFiles)
	assert.True(t, cfg.Sync.VerboseFlowLogging)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)

	sc := cfg.StoreConfig()
	assert.Equal(t, "mysql", sc.Driver)
	assert.Equal(t, 3307, sc.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	// Registered so the variable set by godotenv is removed after the test
	t.Setenv("SALESFORCE_ORG", "")
	os.Unsetenv("SALESFORCE_ORG")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SALESFORCE_ORG=sandbox\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", cfg.Salesforce.Org)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	configContent := `
database:
  driver: sqlite3
  name: meta.db
salesforce:
  org: staging
sync:
  flows: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sfsync.yml"), []byte(configContent), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "meta.db", cfg.Database.Name)
	assert.Equal(t, "staging", cfg.Salesforce.Org)
	assert.False(t, cfg.Sync.Flows)
	assert.True(t, cfg.Sync.Fields)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SQL_DRIVER", "{ODBC Driver 17 for SQL Server}")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateForSync(t *testing.T) {
	cfg := &Config{Sync: SyncConfig{Flows: true, FlowOutputDir: "sf_flows"}}
	assert.Error(t, cfg.ValidateForSync())

	cfg.Salesforce.Org = "prod"
	assert.NoError(t, cfg.ValidateForSync())

	cfg.Sync.FlowOutputDir = ""
	assert.Error(t, cfg.ValidateForSync())
}

func TestAnyPhaseEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.AnyPhaseEnabled())

	cfg.Sync.Flows = true
	assert.True(t, cfg.AnyPhaseEnabled())
}
