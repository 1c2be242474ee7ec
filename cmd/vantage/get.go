package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/dashboard"
)

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <resource> [id]",
		Short: "Fetch one dashboard resource",
		Long:  "Fetch one of: stats, tasks, projects, project <id>, performance, summary, health",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			ctx := cmd.Context()
			svc := a.service
			p := printer()

			switch args[0] {
			case dashboard.KeyStats:
				v, err := svc.Stats().Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintStats(v)
			case dashboard.KeyTasks:
				v, err := svc.Tasks().Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintTasks(v)
			case dashboard.KeyProjects:
				v, err := svc.Projects().Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintProjects(v)
			case "project":
				if len(args) != 2 {
					return fmt.Errorf("project requires an id")
				}
				id, err := strconv.Atoi(args[1])
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid project id: %s", args[1])
				}
				v, err := svc.Project(id).Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintProjectDetail(v)
			case dashboard.KeyPerformance:
				v, err := svc.Performance().Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintPerformance(v)
			case dashboard.KeySummary:
				v, err := svc.Summary().Fetch(ctx)
				if err != nil {
					return err
				}
				return p.PrintSummary(v)
			case dashboard.KeyHealth:
				v, err := svc.Health().Fetch(ctx)
				if err != nil {
					return err
				}
				if p.Structured() {
					return p.Print(v)
				}
				p.Success("API %s at %s", v.Status, v.Timestamp.Format("2006-01-02 15:04:05"))
				return nil
			default:
				return fmt.Errorf("unknown resource: %s", args[0])
			}
		},
	}

	return cmd
}
