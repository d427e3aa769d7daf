package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/config"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
	"github.com/canvass-io/canvass/pkg/web"
)

const tokenPurpose = "canvass.tokens"

// canvass-api is the companion JSON API. It accepts only bearer
// principals; there are no sessions and no sign-in routes.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "canvass-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	tokenProtector, err := tokencache.NewProtector(cfg.Protection.Secret, tokenPurpose)
	if err != nil {
		return err
	}
	sessionProtector, err := tokencache.NewProtector(cfg.Protection.Secret, sso.SessionPurpose)
	if err != nil {
		return err
	}

	tokens := tokencache.NewService(
		tokencache.NewProtectedStore(redisClient, tokenProtector, cfg.Redis.TokenTTL),
		logger, metrics)
	sessions := sso.NewSessionManager(sessionProtector, cfg.Protection.SessionTTL)

	store, err := surveys.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to open survey store: %w", err)
	}
	defer store.Close()

	// The authenticator is used here only as the bearer-token verifier.
	authenticator, err := sso.NewAuthenticator(ctx, cfg.OIDC, sessions, tokens, store, logger, metrics)
	if err != nil {
		return err
	}

	policies, err := authz.NewRegistry(authz.DefaultPolicies(web.SchemeBearer)...)
	if err != nil {
		return err
	}

	server := web.NewServer(web.Options{
		Logger:   logger,
		Metrics:  metrics,
		Bearer:   authenticator,
		Tokens:   tokens,
		Registry: policies,
		Authz:    authz.NewHandler(logger, metrics),
		Store:    store,
	})

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthHandler := http.NewServeMux()
	healthHandler.Handle("/", web.HealthHandler())
	if cfg.Observability.MetricsEnabled {
		healthHandler.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthHandler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("API server listening")
		if err := appServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
		return appServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
