// Package config содержит логику чтения конфигурации клиента витрины.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/storefront-client/internal/repository"
)

const (
	defaultRunAddress         = "localhost:8090"
	defaultAPIBaseURL         = "http://localhost:5000/api/v1"
	defaultStorageBackend     = string(repository.BackendFile)
	defaultStorageDSN         = "storefront-state.json"
	defaultRequestTimeout     = 10 * time.Second
	defaultAdminIdleTimeout   = 30 * time.Minute
	defaultAdminCheckInterval = time.Minute
)

// Config содержит параметры конфигурации клиента витрины.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	APIBaseURL         string        `env:"API_BASE_URL"`
	StorageBackend     string        `env:"STORAGE_BACKEND"`
	StorageDSN         string        `env:"STORAGE_DSN"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT"`
	AdminIdleTimeout   time.Duration `env:"ADMIN_IDLE_TIMEOUT"`
	AdminCheckInterval time.Duration `env:"ADMIN_CHECK_INTERVAL"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения важнее флагов.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for local HTTP server")
	flag.StringVar(&cfg.APIBaseURL, "u", defaultAPIBaseURL, "storefront backend API base URL")
	flag.StringVar(&cfg.StorageBackend, "s", defaultStorageBackend, "state storage backend: memory|file|sqlite|postgres|redis")
	flag.StringVar(&cfg.StorageDSN, "d", defaultStorageDSN, "state storage path, DSN or address")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", defaultRequestTimeout, "backend request timeout")
	flag.DurationVar(&cfg.AdminIdleTimeout, "t", defaultAdminIdleTimeout, "admin session idle timeout")
	flag.DurationVar(&cfg.AdminCheckInterval, "admin-check-interval", defaultAdminCheckInterval, "admin idle check interval")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.APIBaseURL != "" {
		cfg.APIBaseURL = envCfg.APIBaseURL
	}
	if envCfg.StorageBackend != "" {
		cfg.StorageBackend = envCfg.StorageBackend
	}
	if envCfg.StorageDSN != "" {
		cfg.StorageDSN = envCfg.StorageDSN
	}
	if envCfg.RequestTimeout != 0 {
		cfg.RequestTimeout = envCfg.RequestTimeout
	}
	if envCfg.AdminIdleTimeout != 0 {
		cfg.AdminIdleTimeout = envCfg.AdminIdleTimeout
	}
	if envCfg.AdminCheckInterval != 0 {
		cfg.AdminCheckInterval = envCfg.AdminCheckInterval
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch repository.Backend(c.StorageBackend) {
	case repository.BackendMemory, repository.BackendFile, repository.BackendSQLite,
		repository.BackendPostgres, repository.BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.RequestTimeout <= 0 || c.AdminIdleTimeout <= 0 || c.AdminCheckInterval <= 0 {
		return errors.New("timeouts must be positive")
	}

	return nil
}
