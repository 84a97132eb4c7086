package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 0.10, c.Validator.MaxPositionPercent)
	assert.Equal(t, 15*time.Second, c.Overseer.ScanInterval)
	assert.Equal(t, "memory", c.Search.Backend)
	assert.Equal(t, 2, c.Queue.Workers)
	assert.Equal(t, 10*time.Second, c.Queue.RetryDelay)
	assert.Equal(t, 365, c.ClickHouse.WarmupLimit)
	assert.Equal(t, "stag.core.events", c.Kafka.EventsTopic)
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9090
search:
  backend: layered
queue:
  enabled: true
  workers: 4
finnhub:
  enabled: true
  api_key: k
  symbols: [AAPL, MSFT]
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "layered", c.Search.Backend)
	assert.True(t, c.Queue.Enabled)
	assert.Equal(t, 4, c.Queue.Workers)
	assert.Equal(t, 3, c.Queue.RetryLimit, "untouched keys keep their defaults")
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Finnhub.Symbols)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad backend":       "search:\n  backend: sqlite\n",
		"kafka no brokers":  "kafka:\n  enabled: true\n",
		"finnhub no key":    "finnhub:\n  enabled: true\n  symbols: [AAPL]\n",
		"health thresholds": "store:\n  degraded_after: 2h\n  unhealthy_after: 1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("STAG_HTTP_PORT", "7070")
	t.Setenv("STAG_LOG_LEVEL", "debug")
	t.Setenv("STAG_SYMBOLS", "AAPL,NVDA")
	t.Setenv("STAG_REDIS_HOST", "cache.internal")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, []string{"AAPL", "NVDA"}, c.Finnhub.Symbols)
	assert.Equal(t, "cache.internal", c.Redis.Host)
	assert.Equal(t, "localhost", c.ClickHouse.Host, "unset variables leave the file value")
}

func TestLoadWithEnvWithoutFile(t *testing.T) {
	t.Setenv("STAG_KAFKA_BROKERS", "k1:9092,k2:9092")
	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "GOOGL", c.Ingest.Aliases["GOOG"])
	assert.False(t, c.Kafka.Enabled)
}
