package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/mockapi"
)

func mockAPICmd() *cobra.Command {
	var (
		addr  string
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Serve an in-memory dashboard API for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				logging.SetLevelFromString(logLevel)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := &http.Server{
				Addr:              addr,
				Handler:           mockapi.New(mockapi.WithDelay(delay)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			logging.Op().Info().Str("addr", addr).Dur("delay", delay).Msg("mock API listening")

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":3001", "Listen address")
	cmd.Flags().DurationVar(&delay, "delay", 300*time.Millisecond, "Artificial latency of /api responses")

	return cmd
}
