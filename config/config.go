// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config holds every environment-driven setting of the service.
type Config struct {
	Debug bool `env:"DEBUG"`

	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	IntakeTable             string `env:"INTAKE_TABLE" envDefault:"Intake"`
	AppStateTable           string `env:"APP_STATE_TABLE" envDefault:"AppState"`
	IntakeEventsQueue       string `env:"INTAKE_EVENTS_QUEUE" envDefault:"intake-events"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	DeduperTTL            time.Duration `env:"DEDUPER_TTL" envDefault:"24h"`

	AuthAudience   string        `env:"AUTH0_AUDIENCE"`
	AuthDomain     string        `env:"AUTH0_DOMAIN"`
	AuthTestMode   bool          `env:"AUTH0_TEST_MODE"`
	TestJWTSecret  string        `env:"TEST_JWT_SECRET"`
	JWKSCacheTTL   time.Duration `env:"JWKS_CACHE_TTL" envDefault:"1h"`
	BackendURL     string        `env:"BACKEND_URL"`
	BackendAnonKey string        `env:"BACKEND_ANON_KEY"`

	HydrationTimeout      time.Duration `env:"HYDRATION_TIMEOUT" envDefault:"10s"`
	PersistWorkers        int           `env:"PERSIST_WORKERS" envDefault:"8"`
	PersistBuffer         int           `env:"PERSIST_BUFFER" envDefault:"1024"`
	PersistTimeout        time.Duration `env:"PERSIST_TIMEOUT" envDefault:"30s"`
	PersistHandoffTimeout time.Duration `env:"PERSIST_HANDOFF_TIMEOUT" envDefault:"50ms"`
	SessionIdleTTL        time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	OnboardingQuestions int    `env:"ONBOARDING_QUESTIONS" envDefault:"3"`
	HomeRoute           string `env:"HOME_ROUTE" envDefault:"/(tabs)"`
	Port                string `env:"FUNCTIONS_CUSTOMHANDLER_PORT" envDefault:"8080"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting the service cannot start without.
// Backend credentials are optional.
func (c Config) Validate() error {
	if c.StorageConnectionString == "" || c.IntakeTable == "" || c.AppStateTable == "" || c.IntakeEventsQueue == "" {
		return errors.New("missing storage config")
	}
	if c.RedisConnectionString == "" {
		return errors.New("missing redis config")
	}
	if c.AuthTestMode {
		if c.TestJWTSecret == "" {
			return errors.New("missing TEST_JWT_SECRET in test mode")
		}
	} else if c.AuthAudience == "" || c.AuthDomain == "" {
		return errors.New("missing Auth0 config")
	}
	if c.CacheTTL <= 0 {
		return errors.New("invalid CACHE_TTL: must be greater than zero")
	}
	if c.DeduperTTL <= 0 {
		return errors.New("invalid DEDUPER_TTL: must be greater than zero")
	}
	if c.HydrationTimeout <= 0 {
		return errors.New("invalid HYDRATION_TIMEOUT: must be greater than zero")
	}
	if c.PersistWorkers <= 0 {
		return errors.New("invalid PERSIST_WORKERS: must be greater than zero")
	}
	if c.PersistBuffer < 0 {
		return errors.New("invalid PERSIST_BUFFER: must not be negative")
	}
	if c.OnboardingQuestions <= 0 {
		return errors.New("invalid ONBOARDING_QUESTIONS: must be greater than zero")
	}
	if !strings.HasPrefix(c.HomeRoute, "/") {
		return errors.New("invalid HOME_ROUTE: must start with /")
	}
	return nil
}

// ListenAddr is the address the HTTP server binds.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// RedisOptions parses a redis URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "=") {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
