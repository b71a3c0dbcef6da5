package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type AppConfig struct {
	HTTPAddr     string        `env:"HTTP_ADDR" env-default:":8080"`
	DatabaseURL  string        `env:"DATABASE_URL"` // empty → in-memory store
	LogLevel     string        `env:"LOG_LEVEL" env-default:"info"`
	LogDev       bool          `env:"LOG_DEV" env-default:"false"`
	CSTimeout    time.Duration `env:"CS_TIMEOUT" env-default:"30s"`
	ClientBuffer int           `env:"CLIENT_BUFFER" env-default:"32"`
	HistoryLimit int           `env:"HISTORY_LIMIT" env-default:"100"`
	DefaultRooms []string      `env:"DEFAULT_ROOMS" env-separator:"," env-default:"Lobby,General"`
	Origins      []string      `env:"WS_ORIGINS" env-separator:","`
}

// Load reads an optional .env file, then the environment, into AppConfig.
func Load(envFiles ...string) (*AppConfig, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &AppConfig{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.CSTimeout < 0 {
		return fmt.Errorf("CS_TIMEOUT must not be negative, got %s", c.CSTimeout)
	}
	if c.ClientBuffer <= 0 {
		return fmt.Errorf("CLIENT_BUFFER must be positive, got %d", c.ClientBuffer)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Logger builds the process logger: JSON in production, console when LOG_DEV is set.
func (c *AppConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
