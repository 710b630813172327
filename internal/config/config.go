package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Discord DiscordConfig `mapstructure:"discord" yaml:"discord"`
	Relay   RelayConfig   `mapstructure:"relay" yaml:"relay"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Stats   StatsConfig   `mapstructure:"stats" yaml:"stats"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	// GuildID restricts forwarding to one guild. Empty forwards every guild.
	GuildID          string `mapstructure:"guild_id" yaml:"guild_id"`
	MessageCacheSize int    `mapstructure:"message_cache_size" yaml:"message_cache_size"`
}

type RelayConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	SigningSecret string        `mapstructure:"signing_secret" yaml:"signing_secret"`
	// ShutdownGrace bounds how long in-flight deliveries may run on exit.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	URL           string        `mapstructure:"url" yaml:"url"`
	Name          string        `mapstructure:"name" yaml:"name"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

type StatsConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EnvFile is read before the environment is consulted. Variables already set
// in the process environment win.
var EnvFile = ".env"

func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", EnvFile, err)
	}

	v := viper.New()

	// Set defaults
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.message_cache_size", 1000)
	v.SetDefault("relay.url", "")
	v.SetDefault("relay.timeout", "0s")
	v.SetDefault("relay.user_agent", "guildrelay/1.0")
	v.SetDefault("relay.signing_secret", "")
	v.SetDefault("relay.shutdown_grace", "10s")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "guildrelay")
	v.SetDefault("nats.subject_prefix", "guildrelay.events")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("stats.flush_interval", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/guildrelay")
	}

	// Environment variables override
	v.SetEnvPrefix("GUILDRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment variable names predating the GUILDRELAY_ prefix.
	_ = v.BindEnv("discord.token", "GUILDRELAY_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("discord.guild_id", "GUILDRELAY_DISCORD_GUILD_ID", "GUILD_ID")
	_ = v.BindEnv("relay.url", "GUILDRELAY_RELAY_URL", "N8N_ROUTER_URL")

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Discord.GuildID = strings.TrimSpace(cfg.Discord.GuildID)
	return &cfg, nil
}

// Validate reports settings the relay cannot start without. A missing relay
// URL is not an error: events are then logged as not forwarded.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord token is required (DISCORD_BOT_TOKEN)")
	}
	if c.Relay.Timeout < 0 {
		return fmt.Errorf("relay timeout must not be negative, got %s", c.Relay.Timeout)
	}
	if c.Stats.FlushInterval <= 0 && c.Redis.Enabled {
		return fmt.Errorf("stats flush interval must be positive, got %s", c.Stats.FlushInterval)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Discord.Token = mask(c.Discord.Token)
	c.Relay.SigningSecret = mask(c.Relay.SigningSecret)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
