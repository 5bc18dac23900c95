package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/followups
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.PollInterval())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.SendInterval())
	assert.Equal(t, 50, cfg.Scheduler.SendBatchSize)
	assert.Equal(t, "UTC", cfg.Scheduler.SlotTimezone)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
database:
  url: postgres://db/followups
redis:
  addr: localhost:6379
graph:
  tenant_id: tenant-1
  client_id: client-1
  client_secret: secret-1
scheduler:
  mailbox: sales@acme.example
  poll_interval_minutes: 5
  slot_times:
    morning: "09:00"
    afternoon: "15:00"
  slot_timezone: America/New_York
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Graph.Configured())
	assert.Equal(t, "sales@acme.example", cfg.Scheduler.Mailbox)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PollInterval())
	assert.Equal(t, "09:00", cfg.Scheduler.SlotTimes["morning"])
	assert.Equal(t, "America/New_York", cfg.Scheduler.SlotTimezone)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file/followups
`)

	t.Setenv("DATABASE_URL", "postgres://env/followups")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("GRAPH_TENANT_ID", "tenant-env")
	t.Setenv("DRY_RUN", "true")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/followups", cfg.Database.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "tenant-env", cfg.Graph.TenantID)
	assert.True(t, cfg.Graph.DryRun)
	assert.True(t, cfg.SES.DryRun)
}
