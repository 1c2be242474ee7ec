package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/vantage/internal/dashboard"
)

func dashboardCmd() *cobra.Command {
	var combined bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Load and print every dashboard section",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			var overview dashboard.Overview
			if combined {
				overview, err = a.service.Overview().Fetch(cmd.Context())
			} else {
				overview, err = loadSections(cmd.Context(), a.service)
			}
			if err != nil {
				return err
			}
			return printer().PrintOverview(overview)
		},
	}

	cmd.Flags().BoolVar(&combined, "combined", false, "Use the combined /api/dashboard endpoint instead of one request per section")

	return cmd
}

// loadSections fetches the sections concurrently. The first failure cancels
// the rest.
func loadSections(ctx context.Context, svc *dashboard.Service) (dashboard.Overview, error) {
	var o dashboard.Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		o.Stats, err = svc.Stats().Fetch(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Tasks, err = svc.Tasks().Fetch(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Projects, err = svc.Projects().Fetch(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Performance, err = svc.Performance().Fetch(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Summary, err = svc.Summary().Fetch(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return dashboard.Overview{}, err
	}
	return o, nil
}
