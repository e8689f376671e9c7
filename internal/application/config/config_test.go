package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.LockGrace)
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.VanishInterval)
	assert.Greater(t, cfg.Lifecycle.MaxRoomTTL, cfg.Lifecycle.LockGrace)
	assert.Equal(t, 500, cfg.Lifecycle.RecoveryBatch)
	assert.Equal(t, 50, cfg.Lifecycle.RecoveryChunk)
	assert.Equal(t, 1000, cfg.Lifecycle.ExpiryBatch)
	assert.Equal(t, int64(30), cfg.Limits.MessagesPerWindow)
	assert.Equal(t, int64(10), cfg.Limits.FilesPerWindow)
	assert.Equal(t, int64(5), cfg.Limits.RoomsPerWindow)
	assert.Equal(t, int64(10), cfg.Limits.AdminPerWindow)
	assert.Equal(t, 5*time.Second, cfg.Limits.TextDedupWindow)
	assert.Equal(t, 10*time.Second, cfg.Limits.FileDedupWindow)
	assert.False(t, cfg.Postgres.Enabled())
}

func TestNew_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := New()
	assert.Error(t, err)
}

func TestNew_FromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOCK_GRACE", "2h")
	t.Setenv("RATE_MESSAGES", "3")
	t.Setenv("POSTGRES_URL", "postgres://u:p@db/audit")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 2*time.Hour, cfg.Lifecycle.LockGrace)
	assert.Equal(t, int64(3), cfg.Limits.MessagesPerWindow)
	assert.True(t, cfg.Postgres.Enabled())
	assert.Equal(t, "postgres://u:p@db/audit", cfg.Postgres.DSN())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:         "3000",
			StoreBackend: "memory",
			CoordBackend: "none",
			Lifecycle: LifecycleConfig{
				LockGrace:      24 * time.Hour,
				VanishInterval: 5 * time.Minute,
				VanishBatch:    100,
				RecoveryBatch:  500,
				RecoveryChunk:  50,
				ExpiryBatch:    1000,
				DefaultRoomTTL: time.Hour,
				MaxRoomTTL:     7 * 24 * time.Hour,
			},
			Limits: LimitsConfig{
				Window:            time.Minute,
				MessagesPerWindow: 30,
				FilesPerWindow:    10,
				RoomsPerWindow:    5,
				AdminPerWindow:    10,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"unknown store", func(c *Config) { c.StoreBackend = "sqlite" }, true},
		{"unknown coord", func(c *Config) { c.CoordBackend = "etcd" }, true},
		{"grace below interval", func(c *Config) { c.Lifecycle.LockGrace = time.Minute }, true},
		{"zero batch", func(c *Config) { c.Lifecycle.RecoveryChunk = 0 }, true},
		{"zero limit", func(c *Config) { c.Limits.MessagesPerWindow = 0 }, true},
		{"default ttl above max", func(c *Config) { c.Lifecycle.DefaultRoomTTL = 8 * 24 * time.Hour }, true},
		{"max ttl within grace", func(c *Config) { c.Lifecycle.MaxRoomTTL = 24 * time.Hour }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
