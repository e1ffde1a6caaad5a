package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/logging"
	"github.com/nomis52/cloudops/metrics"
	"github.com/nomis52/cloudops/pipeline"
	"github.com/nomis52/cloudops/server"
	"github.com/nomis52/cloudops/server/cron"
	"github.com/nomis52/cloudops/server/runner"
)

type serveOptions struct {
	listen   string
	cron     string
	stateDir string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run builds on a schedule",
		Long: `Serve starts the HTTP API, which runs builds on request and on the cron
schedules from server.cron and --cron.

The --cron flag takes semicolon separated triggers of the form
<operations>:<schedule>, where operations is a comma separated list or *
for all of them.

Example:
  cloudops serve -c config.yaml
  cloudops serve -c config.yaml --cron "*:0 2 * * *;swap:@hourly"
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (default: server.listen)")
	cmd.Flags().StringVar(&opts.cron, "cron", "", "Additional cron triggers")
	cmd.Flags().StringVar(&opts.stateDir, "state-dir", "", "Directory for run history (default: server.state_dir)")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	if opts.stateDir != "" {
		cfg.Server.StateDir = opts.stateDir
	}

	logger, err := newLogger(cfg, root.configPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	specs, err := cronSpecs(cfg, opts.cron)
	if err != nil {
		return err
	}

	registry, err := metrics.NewScrapeRegistry()
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}

	p, err := pipeline.New(cfg, pipeline.WithLogger(logger.Logger), pipeline.WithRegistry(registry))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	store, err := newStateStore(cfg.Server, logger)
	if err != nil {
		return err
	}
	r := runner.New(logger.Logger, p, runner.WithStateStore(store))
	defer r.Stop()

	serverOpts := []server.Option{
		server.WithLogger(logger.Logger),
		server.WithListenAddr(cfg.Server.Listen),
		server.WithMetricsHandler(registry.Handler()),
		server.WithCron(specs...),
	}
	if cfg.Server.TLSCert != "" {
		serverOpts = append(serverOpts, server.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(&cfg, r, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// cronSpecs combines the configured schedules with those given on the
// command line.
func cronSpecs(cfg config.Config, flagSpec string) ([]cron.TriggerSpec, error) {
	specs := make([]cron.TriggerSpec, 0, len(cfg.Server.Cron))
	for _, trigger := range cfg.Server.Cron {
		specs = append(specs, cron.TriggerSpec{Operations: trigger.Operations, CronSpec: trigger.Schedule})
	}
	if flagSpec == "" {
		return specs, nil
	}

	available := make(map[string]bool, len(cfg.Operations))
	for _, name := range cfg.OperationNames() {
		available[name] = true
	}
	parsed, err := cron.ParseTriggerSpecs(flagSpec, available)
	if err != nil {
		return nil, fmt.Errorf("invalid --cron: %w", err)
	}
	return append(specs, parsed...), nil
}

func newStateStore(cfg config.ServerConfig, logger *logging.Logger) (runner.StateStore, error) {
	if cfg.StateDir == "" {
		return runner.NewMemoryStore(cfg.HistoryLimit), nil
	}
	store, err := runner.NewDiskStore(cfg.StateDir, cfg.HistoryLimit, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}
