package main

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/cache"
)

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <key>...",
		Short: "Broadcast cache invalidations to every running daemon over Redis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(cmd.Context()).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}

			inv := cache.NewInvalidator(rdb, cfg.Redis.Channel)
			defer inv.Close()

			p := printer()
			for _, key := range parseKeys(args) {
				if err := inv.Publish(cmd.Context(), key); err != nil {
					return fmt.Errorf("publish %s: %w", key, err)
				}
				p.Success("Invalidated %s on %s", key, inv.Channel())
			}
			return nil
		},
	}
}
