package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379")
	t.Setenv("AUTH0_AUDIENCE", "aud")
	t.Setenv("AUTH0_DOMAIN", "example.auth0.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IntakeTable != "Intake" || cfg.AppStateTable != "AppState" || cfg.IntakeEventsQueue != "intake-events" {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
	if cfg.HydrationTimeout != 10*time.Second {
		t.Fatalf("expected 10s hydration timeout, got %v", cfg.HydrationTimeout)
	}
	if cfg.PersistWorkers != 8 || cfg.PersistBuffer != 1024 {
		t.Fatalf("unexpected pool defaults %d/%d", cfg.PersistWorkers, cfg.PersistBuffer)
	}
	if cfg.OnboardingQuestions != 3 || cfg.HomeRoute != "/(tabs)" {
		t.Fatalf("unexpected flow defaults %d %q", cfg.OnboardingQuestions, cfg.HomeRoute)
	}
	if cfg.ListenAddr() != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr())
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEBUG", "true")
	t.Setenv("HYDRATION_TIMEOUT", "250ms")
	t.Setenv("ONBOARDING_QUESTIONS", "5")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug {
		t.Fatal("expected debug")
	}
	if cfg.HydrationTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected hydration timeout %v", cfg.HydrationTimeout)
	}
	if cfg.OnboardingQuestions != 5 {
		t.Fatalf("unexpected questions %d", cfg.OnboardingQuestions)
	}
	if cfg.ListenAddr() != ":7071" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr())
	}
}

func TestLoadMissing(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		set   map[string]string
	}{
		{name: "storage", unset: "STORAGE_CONNECTION_STRING"},
		{name: "redis", unset: "REDIS_CONNECTION_STRING"},
		{name: "auth", unset: "AUTH0_DOMAIN"},
		{name: "test mode secret", set: map[string]string{"AUTH0_TEST_MODE": "true"}},
		{name: "questions", set: map[string]string{"ONBOARDING_QUESTIONS": "0"}},
		{name: "home route", set: map[string]string{"HOME_ROUTE": "tabs"}},
		{name: "bad duration", set: map[string]string{"CACHE_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			if tt.unset != "" {
				t.Setenv(tt.unset, "")
			}
			for k, v := range tt.set {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadBackendOptional(t *testing.T) {
	setRequired(t)
	t.Setenv("BACKEND_URL", "")
	t.Setenv("BACKEND_ANON_KEY", "")
	if _, err := Load(); err != nil {
		t.Fatalf("backend credentials must be optional: %v", err)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts, err = RedisOptions("onboarding.redis.cache.windows.net:6380,password=pw,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("azure: %v", err)
	}
	if opts.Addr != "onboarding.redis.cache.windows.net:6380" || opts.Password != "pw" {
		t.Fatalf("unexpected azure options %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected tls for ssl=True")
	}

	if _, err := RedisOptions("password=pw"); err == nil {
		t.Fatal("expected error without host")
	}
}
