package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/dashboard"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create, update or delete projects",
	}
	cmd.AddCommand(projectCreateCmd(), projectUpdateCmd(), projectDeleteCmd())
	return cmd
}

func projectFlags(cmd *cobra.Command, in *dashboard.ProjectInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "Project name")
	cmd.Flags().StringVar(&in.Owner, "owner", "", "Project owner")
	cmd.Flags().StringVar(&in.Due, "due", "", "Due date, e.g. \"12 Mar 2024\"")
	cmd.Flags().StringVar(&in.Status, "status", "", "Status: In Progress, Completed, On Hold, Pending")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().IntVar(&in.Progress, "progress", 0, "Progress percentage")
	cmd.Flags().IntVar(&in.Total, "total", 0, "Total tasks")
	cmd.Flags().IntVar(&in.Done, "done", 0, "Done tasks")
	cmd.Flags().StringSliceVar(&in.Tags, "tags", nil, "Tags")
}

func projectCreateCmd() *cobra.Command {
	var in dashboard.ProjectInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			p, err := a.service.CreateProject().Mutate(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := printer()
			if out.Structured() {
				return out.Print(p)
			}
			out.Success("Project %q created with id %d", p.Name, p.ID)
			return nil
		},
	}
	projectFlags(cmd, &in)
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var in dashboard.ProjectInput

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			p, err := a.service.UpdateProject().Mutate(cmd.Context(), dashboard.ProjectUpdate{ID: id, Input: in})
			if err != nil {
				return err
			}
			return printer().PrintProjectDetail(p)
		},
	}
	projectFlags(cmd, &in)
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cfg)
			defer a.Close()

			if _, err := a.service.DeleteProject().Mutate(cmd.Context(), id); err != nil {
				return err
			}
			printer().Success("Project %d deleted", id)
			return nil
		},
	}
}

func parseProjectID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid project id: %s", s)
	}
	return id, nil
}
