package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/adapter/inventory"
	"github.com/user/proxyservice/pkg/config"
	"github.com/user/proxyservice/pkg/logger"
	"github.com/user/proxyservice/pkg/metrics"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxyservice",
		Short: "Proxy rotation for crawlers backed by a proxy inventory service",
		Long: `proxyservice keeps per-target pools of proxies fetched from a proxy inventory
service, rotates them across outbound requests and replaces proxies that get blocked.

Configuration comes from an optional file and PROXY_SERVICE_* environment variables:
  PROXY_SERVICE_HOST, PROXY_SERVICE_USER and PROXY_SERVICE_PASSWORD are required.

Examples:
  proxyservice serve --config proxyservice.yaml
  proxyservice fetch 12 --length 5 --providers aws
  proxyservice target 12
  proxyservice get --target 12 https://example.com/`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json, toml or env)")
	cmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newTargetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// setup loads and validates the configuration and builds the logger every command shares.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func newInventoryClient(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*inventory.Client, error) {
	return inventory.NewClient(inventory.Config{
		Host:        cfg.Host,
		User:        cfg.User,
		Password:    cfg.Password,
		Retry:       cfg.Retry,
		MaxAttempts: cfg.MaxRetryNo,
		RetryDelay:  cfg.RetryDelay,
		Timeout:     cfg.RequestTimeout,
	}, inventory.WithLogger(log), inventory.WithMetrics(m))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "proxyservice %s\n", version)
		},
	}
}
