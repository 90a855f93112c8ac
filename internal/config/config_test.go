package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Draw.DefaultDurationDays)
	assert.Equal(t, int64(1), cfg.Draw.TicketsPerReferral)
	assert.Equal(t, 8, cfg.Draw.MembershipConcurrency)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres://invite2win:@localhost:5432/invite2win?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
bot:
  token: "file-token"
channel:
  id: -1001234
admin:
  ids: [1, 2]
scheduler:
  interval: 15m
draw:
  tickets_per_referral: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Bot.Token)
	assert.Equal(t, int64(-1001234), cfg.Channel.ID)
	assert.Equal(t, []int64{1, 2}, cfg.Admin.IDs)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, int64(2), cfg.Draw.TicketsPerReferral)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Draw:      DrawConfig{DefaultDurationDays: 7, TicketsPerReferral: 1, MembershipConcurrency: 4},
			Scheduler: SchedulerConfig{Interval: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero duration is allowed", func(c *Config) { c.Draw.DefaultDurationDays = 0 }, false},
		{"negative duration", func(c *Config) { c.Draw.DefaultDurationDays = -1 }, true},
		{"zero tickets per referral", func(c *Config) { c.Draw.TicketsPerReferral = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Draw.MembershipConcurrency = 0 }, true},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestIsAdminProperty checks that IsAdmin answers true exactly for listed IDs.
func TestIsAdminProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 0, 10).Draw(t, "adminIDs")
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		cfg := &Config{Admin: AdminConfig{IDs: adminIDs}}

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if got := cfg.IsAdmin(userID); got != expected {
			t.Fatalf("IsAdmin(%d) = %v, want %v (admins=%v)", userID, got, expected, adminIDs)
		}
	})
}
