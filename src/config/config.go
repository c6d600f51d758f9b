// Package config loads the bot configuration from an optional .env file,
// an optional YAML file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a string ("30s", "5m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Gateway GatewayConfig `yaml:"gateway"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	AppEnv  string        `yaml:"app_env"`
}

type DiscordConfig struct {
	ApplicationID      string `yaml:"application_id"`
	BotToken           string `yaml:"bot_token"`
	PublicKey          string `yaml:"public_key"`
	HTTPBaseURL        string `yaml:"http_base_url"`
	OAuth2ClientID     string `yaml:"oauth2_client_id"`
	OAuth2ClientSecret string `yaml:"oauth2_client_secret"`
	// GuildID scopes command registration to one guild. Empty registers
	// global commands.
	GuildID string `yaml:"guild_id"`
}

type GatewayConfig struct {
	Address                string   `yaml:"address"`
	Version                int      `yaml:"version"`
	Intents                uint64   `yaml:"intents"`
	ShardID                int      `yaml:"shard_id"`
	ShardCount             int      `yaml:"shard_count"`
	Compress               bool     `yaml:"compress"`
	HeartbeatTimeoutFactor float64  `yaml:"heartbeat_timeout_factor"`
	BackoffBase            Duration `yaml:"backoff_base"`
	BackoffMax             Duration `yaml:"backoff_max"`
	StablePeriod           Duration `yaml:"stable_period"`
	MaxReconnectAttempts   int      `yaml:"max_reconnect_attempts"`
	MaxRateLimitWait       Duration `yaml:"max_rate_limit_wait"`
	ShutdownTimeout        Duration `yaml:"shutdown_timeout"`
	Concurrent             bool     `yaml:"concurrent"`
	MaxConcurrency         int      `yaml:"max_concurrency"`
}

type ServerConfig struct {
	// Address of the webhook and status server. Empty disables it.
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for anything not set explicitly.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			HTTPBaseURL: "https://discord.com/api/v10",
		},
		Gateway: GatewayConfig{
			Address:                "wss://gateway.discord.gg",
			Version:                10,
			Intents:                641,
			ShardCount:             1,
			HeartbeatTimeoutFactor: 2,
			BackoffBase:            Duration(time.Second),
			BackoffMax:             Duration(60 * time.Second),
			StablePeriod:           Duration(60 * time.Second),
			MaxRateLimitWait:       Duration(5 * time.Minute),
			ShutdownTimeout:        Duration(5 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		AppEnv:  "development",
	}
}

// Load reads .env from the working directory when present, then the YAML
// file at path when path is not empty, then the environment. The result is
// validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR, or nothing when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyEnv() error {
	stringEnv := map[string]*string{
		"DC_APPLICATION_ID":       &c.Discord.ApplicationID,
		"DC_BOT_TOKEN":            &c.Discord.BotToken,
		"DC_PUBLIC_KEY":           &c.Discord.PublicKey,
		"DC_HTTP_BASE_URL":        &c.Discord.HTTPBaseURL,
		"DC_OAUTH2_CLIENT_ID":     &c.Discord.OAuth2ClientID,
		"DC_OAUTH2_CLIENT_SECRET": &c.Discord.OAuth2ClientSecret,
		"DC_GUILD_ID":             &c.Discord.GuildID,
		"DC_GATEWAY_ADDRESS":      &c.Gateway.Address,
		"API_ADDRESS":             &c.Server.Address,
		"APP_ENV":                 &c.AppEnv,
		"LOG_LEVEL":               &c.Logging.Level,
		"LOG_FORMAT":              &c.Logging.Format,
	}
	for k, v := range stringEnv {
		if val, ok := os.LookupEnv(k); ok && val != "" {
			*v = val
		}
	}

	if val, ok := os.LookupEnv("DC_GATEWAY_VERSION"); ok && val != "" {
		version, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing DC_GATEWAY_VERSION %q: %w", val, err)
		}
		c.Gateway.Version = version
	}
	if val, ok := os.LookupEnv("DC_INTENTS"); ok && val != "" {
		intents, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing DC_INTENTS %q: %w", val, err)
		}
		c.Gateway.Intents = intents
	}
	return nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	oauth2 := c.Discord.OAuth2ClientID != "" && c.Discord.OAuth2ClientSecret != ""
	if c.Discord.BotToken == "" && !oauth2 {
		return fmt.Errorf("discord.bot_token (DC_BOT_TOKEN) is required unless oauth2 client credentials are set")
	}
	if c.Gateway.Version <= 0 {
		return fmt.Errorf("gateway.version must be positive, got %d", c.Gateway.Version)
	}
	if c.Gateway.ShardCount < 1 {
		return fmt.Errorf("gateway.shard_count must be at least 1, got %d", c.Gateway.ShardCount)
	}
	if c.Gateway.ShardID < 0 || c.Gateway.ShardID >= c.Gateway.ShardCount {
		return fmt.Errorf("gateway.shard_id %d out of range for %d shards", c.Gateway.ShardID, c.Gateway.ShardCount)
	}
	if c.Gateway.HeartbeatTimeoutFactor <= 1 {
		return fmt.Errorf("gateway.heartbeat_timeout_factor must be greater than 1, got %v", c.Gateway.HeartbeatTimeoutFactor)
	}
	durations := map[string]Duration{
		"gateway.backoff_base":        c.Gateway.BackoffBase,
		"gateway.backoff_max":         c.Gateway.BackoffMax,
		"gateway.stable_period":       c.Gateway.StablePeriod,
		"gateway.max_rate_limit_wait": c.Gateway.MaxRateLimitWait,
		"gateway.shutdown_timeout":    c.Gateway.ShutdownTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Gateway.BackoffMax < c.Gateway.BackoffBase {
		return fmt.Errorf("gateway.backoff_max must not be less than gateway.backoff_base")
	}
	if c.Gateway.MaxReconnectAttempts < 0 {
		return fmt.Errorf("gateway.max_reconnect_attempts must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
