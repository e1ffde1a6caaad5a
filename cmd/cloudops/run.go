package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/metrics"
	"github.com/nomis52/cloudops/pipeline"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var operations []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured build once",
		Long: `Run executes the configured operations in order and exits non-zero if the
build fails. Metrics are pushed when monitoring.victoriametrics_url is set.

Example:
  cloudops run -c /etc/cloudops/config.yaml
  cloudops run -c config.yaml --operations deploy,swap
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, root.configPath)
			if err != nil {
				return err
			}
			defer logger.Close()

			opts := []pipeline.Option{pipeline.WithLogger(logger.Logger)}
			if cfg.Monitoring.VictoriaMetricsURL != "" {
				opts = append(opts, pipeline.WithRegistry(metrics.NewPushRegistry(metrics.PushConfig{
					URL:      cfg.Monitoring.VictoriaMetricsURL,
					Prefix:   cfg.Monitoring.MetricsPrefix,
					Job:      cfg.Monitoring.JobName,
					Instance: hostname(),
					Logger:   logger.Logger,
				})))
			}

			p, err := pipeline.New(cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to create pipeline: %w", err)
			}
			defer p.Close()

			b, err := p.NewBuild(operations)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := p.Execute(ctx, b); err != nil {
				return fmt.Errorf("build %s: %w", b.Status(), err)
			}
			if b.Status() == build.StatusFailed {
				return fmt.Errorf("build failed: %s", strings.Join(b.FailureReasons(), "; "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "build %s\n", b.Status())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&operations, "operations", nil, "Operations to run (default: all)")
	return cmd
}
