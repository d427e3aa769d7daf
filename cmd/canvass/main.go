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
	"golang.org/x/sync/errgroup"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/config"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
	"github.com/canvass-io/canvass/pkg/web"

	"github.com/prometheus/client_golang/prometheus"
)

// tokenPurpose isolates token-cache ciphertexts from session ciphertexts.
const tokenPurpose = "canvass.tokens"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "canvass: %v\n", err)
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
	redisOpts.MaxRetries = cfg.Redis.MaxRetries
	redisOpts.PoolSize = cfg.Redis.PoolSize
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

	blobStore := tokencache.NewProtectedStore(redisClient, tokenProtector, cfg.Redis.TokenTTL)
	tokens := tokencache.NewService(blobStore, logger, metrics)
	sessions := sso.NewSessionManager(sessionProtector, cfg.Protection.SessionTTL)

	store, err := surveys.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to open survey store: %w", err)
	}
	defer store.Close()

	authenticator, err := sso.NewAuthenticator(ctx, cfg.OIDC, sessions, tokens, store, logger, metrics)
	if err != nil {
		return err
	}
	signOut := sso.NewSignOutManager(cfg.OIDC.ClientID, sessions, tokens, logger, metrics)

	policies, err := authz.NewRegistry(authz.DefaultPolicies()...)
	if err != nil {
		return err
	}

	server := web.NewServer(web.Options{
		Logger:   logger,
		Metrics:  metrics,
		Sessions: sessions,
		Auth:     web.NewAuthHandlers(authenticator, signOut, "/surveys", cfg.OIDC.PostLogoutRedirectURL, logger),
		Tokens:   tokens,
		Registry: policies,
		Authz:    authz.NewHandler(logger, metrics),
		Store:    store,
	})

	return serve(ctx, cfg.Server, logger, server, healthMux(registry, cfg.Observability.MetricsEnabled))
}

func healthMux(registry *prometheus.Registry, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", web.HealthHandler())
	if metricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}
	return mux
}

// serve runs the application and health servers until ctx is cancelled,
// then shuts both down gracefully.
func serve(ctx context.Context, cfg config.ServerConfig, logger *observability.Logger, app, health http.Handler) error {
	appServer := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      app,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Host + ":" + cfg.HealthPort,
		Handler: health,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("application server listening")
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
		return appServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
