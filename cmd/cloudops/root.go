package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudops/buildinfo"
	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cloudops",
		Short: "cloudops - supervised long-running cloud operations",
		Long: `cloudops starts remote operations through a management REST API or over
SSH, polls each until it reaches a terminal state or times out, and reports
the outcome as a step of a build.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML, or TOML with a .toml extension)")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath == "" {
		return config.Config{}, errors.New("config flag (-c or --config) is required")
	}
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config, configPath string) (*logging.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("cloudops started", append(buildinfo.Get().LogAttrs(), "config_path", configPath)...)
	return logger, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
