package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/metrics"
	"github.com/oriys/vantage/internal/observability"
	"github.com/oriys/vantage/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr      string
		preload       []string
		focusInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the caching daemon and its control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Daemon.HTTPAddr = httpAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := observability.Init(ctx, cfg.TelemetrySettings(version)); err != nil {
				logging.Op().Warn().Err(err).Msg("tracing disabled")
			}
			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, cfg.Metrics.Buckets)
			}
			if cfg.Daemon.FetchLog != "" {
				if err := logging.Fetches().SetOutput(cfg.Daemon.FetchLog); err != nil {
					return err
				}
			}
			logging.Fetches().SetConsole(cfg.Daemon.LogLevel == "debug")

			a := newApp(cfg)

			var (
				rdb         *redis.Client
				invalidator *cache.Invalidator
			)
			if cfg.Redis.Enabled {
				rdb = redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				invalidator = cache.NewInvalidator(rdb, cfg.Redis.Channel)
				go func() {
					err := invalidator.Start(ctx, func(key string) {
						logging.Op().Debug().Str("key", key).Msg("remote invalidation")
						a.client.Invalidate(key)
					})
					if err != nil {
						logging.Op().Error().Err(err).Msg("invalidation listener stopped")
					}
				}()
			}

			for _, key := range parseKeys(preload) {
				if _, err := a.service.Open(key); err != nil {
					logging.Op().Warn().Err(err).Str("key", key).Msg("preload skipped")
				}
			}

			if focusInterval > 0 {
				a.client.Scheduler().Every(focusInterval, a.client.Revalidate)
			}

			srv, err := server.New(server.Config{
				Service:     a.service,
				Invalidator: invalidator,
				Version:     version,
			})
			if err != nil {
				return err
			}
			httpServer := server.StartHTTPServer(cfg.Daemon.HTTPAddr, srv)
			logging.Op().Info().
				Str("addr", cfg.Daemon.HTTPAddr).
				Str("api", cfg.API.BaseURL).
				Bool("redis", cfg.Redis.Enabled).
				Msg("vantage daemon started")

			<-ctx.Done()
			logging.Op().Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				logging.Op().Warn().Err(err).Msg("HTTP shutdown")
			}
			a.Close()
			if invalidator != nil {
				_ = invalidator.Close()
			}
			if rdb != nil {
				_ = rdb.Close()
			}
			if err := observability.Shutdown(shutdownCtx); err != nil {
				logging.Op().Warn().Err(err).Msg("tracing shutdown")
			}
			logging.Fetches().Close()
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address (overrides config)")
	cmd.Flags().StringSliceVar(&preload, "preload", nil, "Resources to load at startup, e.g. stats,projects")
	cmd.Flags().DurationVar(&focusInterval, "focus-interval", 0, "Revalidate stale resources on this interval, like a window regaining focus")

	return cmd
}
