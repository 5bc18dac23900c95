package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/followup-engine/internal/msgraph"
	"github.com/ignite/followup-engine/internal/ses"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Graph     msgraph.Config  `yaml:"graph"`
	SES       ses.Config      `yaml:"ses"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for pass locking.
// When Addr is empty the runner falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig drives the background runner.
type SchedulerConfig struct {
	// Mailbox restricts scheduling to one sender address. Empty means all.
	Mailbox string `yaml:"mailbox"`

	PollIntervalMinutes int `yaml:"poll_interval_minutes"`
	SendIntervalSeconds int `yaml:"send_interval_seconds"`
	SendBatchSize       int `yaml:"send_batch_size"`

	// SlotTimes enables fixed-slot passes: slot name -> "HH:MM" in
	// SlotTimezone. Empty keeps the engine in continuous mode only.
	SlotTimes    map[string]string `yaml:"slot_times"`
	SlotTimezone string            `yaml:"slot_timezone"`
}

// PollInterval returns the continuous pass interval.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMinutes) * time.Minute
}

// SendInterval returns the delivery sweep interval.
func (s SchedulerConfig) SendInterval() time.Duration {
	return time.Duration(s.SendIntervalSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Scheduler.PollIntervalMinutes == 0 {
		cfg.Scheduler.PollIntervalMinutes = 15
	}
	if cfg.Scheduler.SendIntervalSeconds == 0 {
		cfg.Scheduler.SendIntervalSeconds = 60
	}
	if cfg.Scheduler.SendBatchSize == 0 {
		cfg.Scheduler.SendBatchSize = 50
	}
	if cfg.Scheduler.SlotTimezone == "" {
		cfg.Scheduler.SlotTimezone = "UTC"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if tenant := os.Getenv("GRAPH_TENANT_ID"); tenant != "" {
		cfg.Graph.TenantID = tenant
	}
	if client := os.Getenv("GRAPH_CLIENT_ID"); client != "" {
		cfg.Graph.ClientID = client
	}
	if secret := os.Getenv("GRAPH_CLIENT_SECRET"); secret != "" {
		cfg.Graph.ClientSecret = secret
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if mailbox := os.Getenv("SCHEDULER_MAILBOX"); mailbox != "" {
		cfg.Scheduler.Mailbox = mailbox
	}
	if dryRun := os.Getenv("DRY_RUN"); dryRun == "true" {
		cfg.Graph.DryRun = true
		cfg.SES.DryRun = true
	}

	return cfg, nil
}
