package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Storage.QuotaDriver)
	assert.Equal(t, "open", cfg.Storage.QuotaFailMode)
	assert.Equal(t, 120.0, cfg.Abuse.Global.RatePerMinute)
	assert.Equal(t, 60.0, cfg.Abuse.Global.Burst)
	assert.Equal(t, 30, cfg.Abuse.CooldownSeconds)
	assert.Equal(t, 5, cfg.Abuse.ContactMinIntervalSec)
	assert.Equal(t, 1, cfg.Abuse.ChatMinIntervalSec)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Abuse.Contact, cfg.Abuse.Contact)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadline.yaml")
	doc := `
server:
  port: 9090
storage:
  data_dir: /var/lib/leadline
  quota_driver: sqlite
  quota_fail_mode: closed
abuse:
  contact:
    rate_per_minute: 6
    burst: 3
  cooldown_seconds: 60
  ip_denylist: ["10.0.0.9"]
plans:
  - id: free
    contact_daily: 4
    chat_per_minute: 15
  - id: enterprise
    contact_daily: 1000
    chat_per_minute: 9000
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.QuotaDriver)
	assert.Equal(t, "closed", cfg.Storage.QuotaFailMode)
	assert.Equal(t, 6.0, cfg.Abuse.Contact.RatePerMinute)
	assert.Equal(t, 3.0, cfg.Abuse.Contact.Burst)
	assert.Equal(t, 60, cfg.Abuse.CooldownSeconds)
	assert.Equal(t, []string{"10.0.0.9"}, cfg.Abuse.IPDenylist)
	require.Len(t, cfg.Plans, 2)
	assert.Equal(t, "enterprise", cfg.Plans[1].ID)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, Default().Abuse.Global, cfg.Abuse.Global)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEADLINE_SERVER_PORT", "3000")
	t.Setenv("LEADLINE_DATA_DIR", "/tmp/leadline-data")
	t.Setenv("LEADLINE_IP_GLOBAL_RATE_PER_MIN", "240")
	t.Setenv("LEADLINE_CONTACT_BURST", "2")
	t.Setenv("LEADLINE_ABUSE_COOLDOWN_SEC", "45")
	t.Setenv("LEADLINE_IP_ALLOWLIST", "127.0.0.1, 192.168.1.5 ,")
	t.Setenv("LEADLINE_LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/tmp/leadline-data", cfg.Storage.DataDir)
	assert.Equal(t, 240.0, cfg.Abuse.Global.RatePerMinute)
	assert.Equal(t, 2.0, cfg.Abuse.Contact.Burst)
	assert.Equal(t, 45, cfg.Abuse.CooldownSeconds)
	assert.Equal(t, []string{"127.0.0.1", "192.168.1.5"}, cfg.Abuse.IPAllowlist)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, HasEnvConfig())
}

func TestEnvOverridesOnTopOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("LEADLINE_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad quota driver", func(c *Config) { c.Storage.QuotaDriver = "postgres" }},
		{"bad fail mode", func(c *Config) { c.Storage.QuotaFailMode = "maybe" }},
		{"negative rate", func(c *Config) { c.Abuse.Chat.RatePerMinute = -1 }},
		{"zero burst", func(c *Config) { c.Abuse.Login.Burst = 0 }},
		{"negative cooldown", func(c *Config) { c.Abuse.CooldownSeconds = -5 }},
		{"empty plan id", func(c *Config) { c.Plans = []PlanConfig{{ID: ""}} }},
		{"duplicate plan id", func(c *Config) {
			c.Plans = []PlanConfig{{ID: "free", ContactDaily: 1}, {ID: "free", ContactDaily: 2}}
		}},
		{"negative plan limit", func(c *Config) { c.Plans = []PlanConfig{{ID: "free", ContactDaily: -1}} }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHolderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	h, err := NewHolder(path, testLogger())
	require.NoError(t, err)
	defer h.Stop()

	assert.Equal(t, 9090, h.Get().Server.Port)

	var notified int
	h.OnChange(func(c *Config) { notified = c.Server.Port })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))
	require.NoError(t, h.Reload())

	assert.Equal(t, 9191, h.Get().Server.Port)
	assert.Equal(t, 9191, notified)
}

func TestHolderNotifiesEveryCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	h, err := NewHolder(path, testLogger())
	require.NoError(t, err)
	defer h.Stop()

	var calls []string
	h.OnChange(func(*Config) { calls = append(calls, "first") })
	h.OnChange(func(*Config) { calls = append(calls, "second") })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))
	require.NoError(t, h.Reload())

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestHolderReloadKeepsOldConfigOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	h, err := NewHolder(path, testLogger())
	require.NoError(t, err)
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))
	require.Error(t, h.Reload())

	assert.Equal(t, 9090, h.Get().Server.Port)
}
