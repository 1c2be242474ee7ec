package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oriys/vantage/internal/apiclient"
	"github.com/oriys/vantage/internal/config"
	"github.com/oriys/vantage/internal/dashboard"
	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/output"
	"github.com/oriys/vantage/internal/query"
)

var version = "dev"

var (
	configPath   string
	apiURL       string
	outputFormat string
	logLevel     string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vantage",
		Short:         "Vantage - stale-while-revalidate cache for the project dashboard API",
		Long:          "A caching data layer and CLI that serves dashboard resources fresh, stale or freshly revalidated",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&apiURL, "api", "", "Dashboard API base URL (overrides config)")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, wide, json, yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(
		serveCmd(),
		dashboardCmd(),
		getCmd(),
		projectCmd(),
		watchCmd(),
		invalidateCmd(),
		mockAPICmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
	return cfg, nil
}

// app is the set of components every command works with.
type app struct {
	cfg     *config.Config
	api     *apiclient.Client
	client  *query.Client
	service *dashboard.Service
}

func newApp(cfg *config.Config, opts ...query.Option) *app {
	api := apiclient.New(cfg.APIClientConfig())
	client := query.NewClient(
		query.WithDefaults(cfg.QueryOptions()...),
		query.WithBreaker(cfg.BreakerSettings()),
	)
	return &app{
		cfg:     cfg,
		api:     api,
		client:  client,
		service: dashboard.NewService(api, client, opts...),
	}
}

func (a *app) Close() {
	a.service.Close()
	a.client.Shutdown()
}

func printer() *output.Printer {
	return output.NewPrinter(output.ParseFormat(outputFormat))
}

// parseKeys accepts resource names separated by commas or spaces.
func parseKeys(args []string) []string {
	var keys []string
	for _, arg := range args {
		for _, k := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			keys = append(keys, k)
		}
	}
	return keys
}
