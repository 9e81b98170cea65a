package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Discord   DiscordConfig   `yaml:"discord"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Game      GameConfig      `yaml:"game"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects where the score ledger and timezone directory live
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	LockID          int64         `yaml:"lock_id"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	GroupID        string        `yaml:"group_id"`
	Enabled        bool          `yaml:"enabled"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// DiscordConfig holds chat-side settings for inbound and outbound traffic
type DiscordConfig struct {
	WebhookURL      string        `yaml:"webhook_url"`
	ChannelID       string        `yaml:"channel_id"`
	CommandPrefix   string        `yaml:"command_prefix"`
	Timeout         time.Duration `yaml:"timeout"`
	AnnounceStartup bool          `yaml:"announce_startup"`
}

// WebSocketConfig holds gateway settings
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GameConfig holds the daily game rules
type GameConfig struct {
	Name              string        `yaml:"name"`
	Keyword           string        `yaml:"keyword"`
	URL               string        `yaml:"url"`
	ReferenceTimezone string        `yaml:"reference_timezone"`
	MorningHour       *int          `yaml:"morning_hour"`
	EveningHour       *int          `yaml:"evening_hour"`
	ReminderWindow    int           `yaml:"reminder_window"`
	TickCooldown      time.Duration `yaml:"tick_cooldown"`
}

// Morning returns the local hour of the morning reminder
func (g GameConfig) Morning() int {
	if g.MorningHour == nil {
		return 8
	}
	return *g.MorningHour
}

// Evening returns the local hour of the evening reminder
func (g GameConfig) Evening() int {
	if g.EveningHour == nil {
		return 21
	}
	return *g.EveningHour
}

// Location resolves the reference timezone
func (g GameConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading reference timezone %q: %w", g.ReferenceTimezone, err)
	}
	return loc, nil
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "."
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "globle:"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}
	if c.Postgres.LockID == 0 {
		c.Postgres.LockID = 7106
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "globle-chat-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "globle-leaderboard"
	}
	if c.Kafka.HandlerTimeout == 0 {
		c.Kafka.HandlerTimeout = 10 * time.Second
	}

	// Discord defaults
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "!"
	}
	if c.Discord.Timeout == 0 {
		c.Discord.Timeout = 10 * time.Second
	}

	// Game defaults
	if c.Game.Name == "" {
		c.Game.Name = "Globle"
	}
	if c.Game.Keyword == "" {
		c.Game.Keyword = "globle"
	}
	if c.Game.URL == "" {
		c.Game.URL = "https://globle-game.com/"
	}
	if c.Game.ReferenceTimezone == "" {
		c.Game.ReferenceTimezone = "America/New_York"
	}
	if c.Game.MorningHour == nil {
		h := 8
		c.Game.MorningHour = &h
	}
	if c.Game.EveningHour == nil {
		h := 21
		c.Game.EveningHour = &h
	}
	if c.Game.ReminderWindow == 0 {
		c.Game.ReminderWindow = 5
	}
	if c.Game.TickCooldown == 0 {
		c.Game.TickCooldown = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if _, err := c.Game.Location(); err != nil {
		errs = append(errs, err)
	}
	if h := c.Game.Morning(); h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("morning_hour %d out of range", h))
	}
	if h := c.Game.Evening(); h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("evening_hour %d out of range", h))
	}
	if c.Game.Morning() == c.Game.Evening() {
		errs = append(errs, errors.New("morning_hour and evening_hour must differ"))
	}
	if c.Game.ReminderWindow < 1 || c.Game.ReminderWindow > 59 {
		errs = append(errs, fmt.Errorf("reminder_window %d out of range", c.Game.ReminderWindow))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
