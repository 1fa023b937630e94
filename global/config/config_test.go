package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.WS.AuthTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "buntdb", cfg.Cache.Backend)
	assert.Equal(t, 100, cfg.Cache.RecentSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.RecentTTL)
	assert.Equal(t, time.Hour, cfg.CacheOptions().PresenceTTL)
	assert.True(t, cfg.Auth.RequireActiveMember)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATS.Servers)
	assert.Equal(t, "@every 1h", cfg.Retention.Spec)
	assert.False(t, cfg.Mongo.Enabled())
}

func TestLoadFileEnvFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greenchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  ws:
    ping_interval: 10s
log:
  level: warn
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
retention:
  spec: "0 3 * * *"
`), 0o600))
	t.Setenv("GREENCHAT_AUTH_SECRET", "from-env")
	t.Setenv("GREENCHAT_LOG_LEVEL", "error")

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--addr", ":7000", "--node-id", "42"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr, "flag beats file")
	assert.Equal(t, int64(42), cfg.NodeID)
	assert.Equal(t, "error", cfg.Log.Level, "env beats file")
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, 10*time.Second, cfg.Server.WS.PingInterval)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Spec)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestMergeRemote(t *testing.T) {
	l, err := NewLoader("", nil)
	require.NoError(t, err)
	require.NoError(t, l.Merge("presence:\n  ttl: 30m\nstore:\n  driver: pgx\n"))
	require.NoError(t, l.Merge("  "))
	cfg, err := l.Config()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.CacheOptions().PresenceTTL)
	assert.Equal(t, "pgx", cfg.Store.Driver)

	lvl, ok := LogLevelOf("log:\n  level: debug\n")
	assert.True(t, ok)
	assert.Equal(t, "debug", lvl)
	_, ok = LogLevelOf("server:\n  addr: x\n")
	assert.False(t, ok)
}
