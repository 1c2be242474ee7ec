package main

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/query"
)

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <resource>...",
		Short: "Poll resources and print every settled fetch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("interval must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg)
			defer a.Close()

			var mu sync.Mutex
			p := printer()
			report := func(key string, err error) {
				mu.Lock()
				defer mu.Unlock()
				entry := logging.FetchLog{
					Timestamp: a.client.Scheduler().Now(),
					Key:       key,
					Success:   err == nil,
					Error:     query.Message(err),
				}
				if perr := p.PrintFetch(entry); perr != nil {
					logging.Op().Warn().Err(perr).Msg("print failed")
				}
			}

			for _, key := range parseKeys(args) {
				_, err := a.service.Open(key,
					query.WithRefetchInterval(interval),
					query.OnSuccess(func(any) { report(key, nil) }),
					query.OnError(func(err error) { report(key, err) }),
				)
				if err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Polling interval")

	return cmd
}
