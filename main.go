package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"onboarding-api/api"
	"onboarding-api/backend"
	"onboarding-api/config"
	"onboarding-api/domain"
	"onboarding-api/session"
	"onboarding-api/state"
	"onboarding-api/storage"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	store, err := storage.New(cfg.StorageConnectionString, cfg.IntakeTable, cfg.AppStateTable, cfg.IntakeEventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	cache := storage.NewCache(store, rc, cfg.CacheTTL)
	deduper := api.NewRedisDeduper(rc, cfg.DeduperTTL)

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	pool := session.NewPool(session.PoolConfig{
		Workers:        cfg.PersistWorkers,
		Buffer:         cfg.PersistBuffer,
		Timeout:        cfg.PersistTimeout,
		HandoffTimeout: cfg.PersistHandoffTimeout,
	}, logger)
	registry := session.NewRegistry(cache, pool, logger, cfg.SessionIdleTTL, state.WithHydrationTimeout(cfg.HydrationTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go registry.Run(ctx, sweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(echoprometheus.NewMiddleware("onboarding_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Sessions: registry,
		Events:   cache,
		Auth:     auth,
		Deduper:  deduper,
		Profiles: backend.NewClient(cfg.BackendURL, cfg.BackendAnonKey, logger),
		Flow:     domain.NewFlow(cfg.OnboardingQuestions, cfg.HomeRoute),
		Logger:   logger,
	})

	go func() {
		if err := e.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	pool.Close()
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	if cfg.AuthTestMode {
		return api.NewAuth(nil, api.AuthConfig{
			Audience:   cfg.AuthAudience,
			TestMode:   true,
			TestSecret: cfg.TestJWTSecret,
		})
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.AuthDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: cfg.JWKSCacheTTL})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, api.AuthConfig{
		Audience:    cfg.AuthAudience,
		Issuer:      "https://" + cfg.AuthDomain + "/",
		KeyCacheTTL: cfg.JWKSCacheTTL,
	})
}
