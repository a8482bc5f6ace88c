// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Tokens   []string `yaml:"tokens"` // first token is the primary bot
	Mode     string   `yaml:"mode"`   // single_token | single_interface | multi_bot
	AdminIDs []int64  `yaml:"admin_ids"`

	RequiredChannel struct {
		Title    string `yaml:"title"`
		Username string `yaml:"username"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"required_channel"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"` // external result cache
}

type SearchConfig struct {
	PageSize        int           `yaml:"page_size"`        // name search results per page
	RatePerMinute   int           `yaml:"rate_per_minute"`  // searches per user per window
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type ResultsAPIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type BroadcastConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

type WebConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // guards the stats and broadcast endpoints
}

type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Search     SearchConfig     `yaml:"search"`
	ResultsAPI ResultsAPIConfig `yaml:"results_api"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Web        WebConfig        `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads flags, loads the yaml file and applies defaults.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	cfg, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// LoadFile parses one config file without touching the flag package, so tests
// can load fixtures directly.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Mode == "" {
		c.Bot.Mode = "single_token"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = time.Hour
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 5
	}
	if c.Search.RatePerMinute <= 0 {
		c.Search.RatePerMinute = 3
	}
	if c.Search.RateLimitWindow <= 0 {
		c.Search.RateLimitWindow = time.Minute
	}
	if c.ResultsAPI.Timeout <= 0 {
		c.ResultsAPI.Timeout = 10 * time.Second
	}
	if c.ResultsAPI.MaxAttempts <= 0 {
		c.ResultsAPI.MaxAttempts = 3
	}
	if c.Broadcast.BatchSize <= 0 {
		c.Broadcast.BatchSize = 30
	}
	if c.Broadcast.BatchDelay <= 0 {
		c.Broadcast.BatchDelay = time.Second
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}
}

func (c *Config) validate() error {
	if len(c.Bot.Tokens) == 0 {
		return errors.New("bot.tokens is required")
	}
	switch c.Bot.Mode {
	case "single_token", "single_interface", "multi_bot":
	default:
		return fmt.Errorf("bot.mode %q is not one of single_token, single_interface, multi_bot", c.Bot.Mode)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	return nil
}
