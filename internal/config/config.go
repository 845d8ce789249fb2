package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/park285/kalah-relay/internal/obslog"
)

type AppConfig struct {
	ListenAddr string   `env:"LISTEN_ADDR" envDefault:":1024"`
	WSAddr     string   `env:"WS_ADDR"`
	WSPath     string   `env:"WS_PATH" envDefault:"/ws"`
	WSOrigins  []string `env:"WS_ORIGINS" envSeparator:","`
	AdminAddr  string   `env:"ADMIN_ADDR"`

	SeedsPerPit        int           `env:"SEEDS_PER_PIT" envDefault:"4"`
	MaxConcurrentGames int           `env:"MAX_CONCURRENT_GAMES" envDefault:"200"`
	MoveTimeout        time.Duration `env:"MOVE_TIMEOUT" envDefault:"0s"`
	ShutdownDelay      time.Duration `env:"SHUTDOWN_DELAY" envDefault:"10s"`

	RedisURL           string `env:"REDIS_URL"`
	DatabaseURL        string `env:"DATABASE_URL"`
	ResultWebhookURL   string `env:"RESULT_WEBHOOK_URL"`
	ResultWebhookToken string `env:"RESULT_WEBHOOK_TOKEN"`

	MessagesDir string `env:"MESSAGES_DIR"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogToConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	LogToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogFile      string `env:"LOG_FILE"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"legacy"`
	LogCaller    bool   `env:"LOG_CALLER" envDefault:"false"`
}

// Load reads the process environment.
func Load() (*AppConfig, error) {
	return parse(env.Options{})
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.WSAddr = strings.TrimSpace(c.WSAddr)
	c.WSPath = strings.TrimSpace(c.WSPath)
	c.AdminAddr = strings.TrimSpace(c.AdminAddr)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.ResultWebhookURL = strings.TrimSpace(c.ResultWebhookURL)
	c.MessagesDir = strings.TrimSpace(c.MessagesDir)

	origins := c.WSOrigins[:0]
	for _, o := range c.WSOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	c.WSOrigins = origins
	if c.WSPath != "" && !strings.HasPrefix(c.WSPath, "/") {
		c.WSPath = "/" + c.WSPath
	}
}

func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" && c.WSAddr == "" {
		return errors.New("LISTEN_ADDR or WS_ADDR is required")
	}
	if c.SeedsPerPit <= 0 {
		return errors.New("SEEDS_PER_PIT must be positive")
	}
	if c.MaxConcurrentGames <= 0 {
		return errors.New("MAX_CONCURRENT_GAMES must be positive")
	}
	if c.MoveTimeout < 0 {
		return errors.New("MOVE_TIMEOUT must not be negative")
	}
	if c.ShutdownDelay < 0 {
		return errors.New("SHUTDOWN_DELAY must not be negative")
	}
	if c.ResultWebhookURL != "" &&
		!strings.HasPrefix(c.ResultWebhookURL, "http://") && !strings.HasPrefix(c.ResultWebhookURL, "https://") {
		return errors.New("RESULT_WEBHOOK_URL must be an http(s) URL")
	}
	return nil
}

// LogOptions maps the LOG_* keys onto the logger options.
func (c *AppConfig) LogOptions() obslog.Options {
	return obslog.Options{
		Level:   c.LogLevel,
		Console: c.LogToConsole,
		ToFile:  c.LogToFile,
		File:    c.LogFile,
		Format:  c.LogFormat,
		Caller:  c.LogCaller,
	}
}
