package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DC_APPLICATION_ID", "DC_BOT_TOKEN", "DC_PUBLIC_KEY", "DC_HTTP_BASE_URL",
		"DC_OAUTH2_CLIENT_ID", "DC_OAUTH2_CLIENT_SECRET", "DC_GUILD_ID",
		"DC_GATEWAY_ADDRESS", "DC_GATEWAY_VERSION", "DC_INTENTS",
		"API_ADDRESS", "APP_ENV", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siren.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DC_BOT_TOKEN", "token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.Discord.BotToken)
	assert.Equal(t, "wss://gateway.discord.gg", cfg.Gateway.Address)
	assert.Equal(t, "https://discord.com/api/v10", cfg.Discord.HTTPBaseURL)
	assert.Equal(t, 10, cfg.Gateway.Version)
	assert.Equal(t, 1, cfg.Gateway.ShardCount)
	assert.Equal(t, 2.0, cfg.Gateway.HeartbeatTimeoutFactor)
	assert.Equal(t, time.Second, cfg.Gateway.BackoffBase.Std())
	assert.Equal(t, time.Minute, cfg.Gateway.BackoffMax.Std())
	assert.Equal(t, 5*time.Minute, cfg.Gateway.MaxRateLimitWait.Std())
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.IsProduction())
}

func TestLoadYAMLWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIREN_TEST_TOKEN", "from-env")
	path := writeConfig(t, `
app_env: production
discord:
  application_id: "123"
  bot_token: "${SIREN_TEST_TOKEN}"
  public_key: "abcd"
gateway:
  intents: 33281
  shard_id: 1
  shard_count: 2
  compress: true
  backoff_base: "500ms"
  backoff_max: "30s"
  shutdown_timeout: "2s"
  concurrent: true
  max_concurrency: 8
server:
  address: ":8080"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Discord.BotToken)
	assert.Equal(t, "123", cfg.Discord.ApplicationID)
	assert.Equal(t, uint64(33281), cfg.Gateway.Intents)
	assert.Equal(t, 1, cfg.Gateway.ShardID)
	assert.Equal(t, 2, cfg.Gateway.ShardCount)
	assert.True(t, cfg.Gateway.Compress)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.BackoffBase.Std())
	assert.Equal(t, 30*time.Second, cfg.Gateway.BackoffMax.Std())
	assert.Equal(t, 2*time.Second, cfg.Gateway.ShutdownTimeout.Std())
	assert.Equal(t, time.Minute, cfg.Gateway.StablePeriod.Std())
	assert.True(t, cfg.Gateway.Concurrent)
	assert.Equal(t, 8, cfg.Gateway.MaxConcurrency)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.IsProduction())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DC_BOT_TOKEN", "env-token")
	t.Setenv("DC_INTENTS", "513")
	t.Setenv("DC_GATEWAY_VERSION", "9")
	t.Setenv("LOG_LEVEL", "warn")
	path := writeConfig(t, `
discord:
  bot_token: file-token
gateway:
  intents: 1
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.BotToken)
	assert.Equal(t, uint64(513), cfg.Gateway.Intents)
	assert.Equal(t, 9, cfg.Gateway.Version)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	assert.ErrorContains(t, err, "bot_token")

	t.Setenv("DC_BOT_TOKEN", "token")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "gateway:\n  backoff_base: soon\n"))
	assert.ErrorContains(t, err, "parsing config file")

	t.Setenv("DC_INTENTS", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "DC_INTENTS")
}

func TestOAuth2CredentialsReplaceBotToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("DC_OAUTH2_CLIENT_ID", "id")
	t.Setenv("DC_OAUTH2_CLIENT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Discord.BotToken)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Discord.BotToken = "token"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"shard_id":                 func(c *Config) { c.Gateway.ShardID = 1 },
		"shard_count":              func(c *Config) { c.Gateway.ShardCount = 0 },
		"version":                  func(c *Config) { c.Gateway.Version = 0 },
		"heartbeat_timeout_factor": func(c *Config) { c.Gateway.HeartbeatTimeoutFactor = 1 },
		"stable_period":            func(c *Config) { c.Gateway.StablePeriod = 0 },
		"backoff_max":              func(c *Config) { c.Gateway.BackoffMax = Duration(time.Millisecond) },
		"max_reconnect_attempts":   func(c *Config) { c.Gateway.MaxReconnectAttempts = -1 },
		"logging.format":           func(c *Config) { c.Logging.Format = "xml" },
	}
	for want, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		assert.ErrorContains(t, cfg.Validate(), want)
	}
}
