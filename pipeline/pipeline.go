// Package pipeline turns the configured operations into builds.
//
// A Pipeline is created once per process. It owns the clients shared by every
// build (the management API client and the SSH connection) and the metrics
// they report to. NewBuild then creates a fresh build.Build for each run,
// optionally restricted to a subset of the operations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/nomis52/cloudops/activities"
	"github.com/nomis52/cloudops/activity"
	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/clients/mgmtclient"
	"github.com/nomis52/cloudops/clients/sshclient"
	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/logging"
	"github.com/nomis52/cloudops/metrics"
	"github.com/nomis52/cloudops/operation"
	"github.com/nomis52/cloudops/statusmap"
)

// Pipeline builds and executes builds from a config.
type Pipeline struct {
	cfg    config.Config
	logger *slog.Logger

	registry     metrics.Registry
	opMetrics    *operation.Metrics
	buildMetrics *BuildMetrics

	client *mgmtclient.Client
	runner sshclient.Runner
	closer func() error
	clock  operation.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRegistry reports operation and build metrics to registry.
func WithRegistry(registry metrics.Registry) Option {
	return func(p *Pipeline) {
		p.registry = registry
	}
}

// WithManagementClient replaces the client built from the management config.
func WithManagementClient(client *mgmtclient.Client) Option {
	return func(p *Pipeline) {
		p.client = client
	}
}

// WithSSHRunner replaces the SSH connection built from the ssh config.
func WithSSHRunner(runner sshclient.Runner) Option {
	return func(p *Pipeline) {
		p.runner = runner
	}
}

// WithClock sets the clock used by supervisors and builds, for tests.
func WithClock(clock operation.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// New creates a Pipeline for cfg. cfg must have been validated.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.registry != nil {
		var err error
		if p.opMetrics, err = operation.NewMetrics(p.registry); err != nil {
			return nil, fmt.Errorf("operation metrics: %w", err)
		}
		if p.buildMetrics, err = NewBuildMetrics(p.registry); err != nil {
			return nil, fmt.Errorf("build metrics: %w", err)
		}
	}

	if p.client == nil && p.uses(config.TypeREST) {
		client, err := newManagementClient(cfg.Management, p.logger)
		if err != nil {
			return nil, fmt.Errorf("management client: %w", err)
		}
		p.client = client
	}

	if p.runner == nil && p.uses(config.TypeSSH) {
		key, err := os.ReadFile(cfg.SSH.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading ssh key: %w", err)
		}
		r := newLazyRunner(cfg.SSH, string(key), p.logger)
		p.runner = r
		p.closer = r.Close
	}

	return p, nil
}

func newManagementClient(cfg config.ManagementConfig, logger *slog.Logger) (*mgmtclient.Client, error) {
	opts := []mgmtclient.Option{
		mgmtclient.WithLogger(logger),
		mgmtclient.WithCredentials(cfg.Credentials...),
		mgmtclient.WithRetry(cfg.Retries(), cfg.RetryWait),
		mgmtclient.WithTimeout(cfg.Timeout),
	}
	if cfg.HandleHeader != "" {
		opts = append(opts, mgmtclient.WithHandleHeader(cfg.HandleHeader))
	}
	if cfg.OperationsPath != "" {
		opts = append(opts, mgmtclient.WithOperationsPath(cfg.OperationsPath))
	}
	if cfg.DocumentPath != "" {
		opts = append(opts, mgmtclient.WithDocumentPath(cfg.DocumentPath))
	}
	if cfg.SucceededWhen != "" {
		mapper, err := statusmap.New(cfg.SucceededWhen, cfg.FailedWhen)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mgmtclient.WithStatusMapper(mapper))
	}
	return mgmtclient.New(cfg.BaseURL, opts...)
}

func (p *Pipeline) uses(opType string) bool {
	for _, op := range p.cfg.Operations {
		if op.Type == opType {
			return true
		}
	}
	return false
}

// Close releases the SSH connection, if one was opened.
func (p *Pipeline) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// OperationNames returns every configured operation in build order.
func (p *Pipeline) OperationNames() []string {
	return p.cfg.OperationNames()
}

// BuildOptions are the per-build sinks set by BuildOption.
type BuildOptions struct {
	Status    *activity.StatusHandler
	Collector *logging.LogCollector
}

// BuildOption configures a single build.
type BuildOption func(*BuildOptions)

// WithStatusHandler records the activities' status lines in h.
func WithStatusHandler(h *activity.StatusHandler) BuildOption {
	return func(o *BuildOptions) {
		o.Status = h
	}
}

// WithLogCollector captures each activity's logs in c.
func WithLogCollector(c *logging.LogCollector) BuildOption {
	return func(o *BuildOptions) {
		o.Collector = c
	}
}

// NewBuild creates a build running the named operations, or every operation
// when names is empty. Dependencies on operations left out are dropped.
func (p *Pipeline) NewBuild(names []string, opts ...BuildOption) (*build.Build, error) {
	o := BuildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Status == nil {
		o.Status = activity.NewStatusHandler()
	}

	selected, err := p.selectOperations(names)
	if err != nil {
		return nil, err
	}

	buildOpts := []build.Option{build.WithLogger(p.logger)}
	if p.clock != nil {
		buildOpts = append(buildOpts, build.WithClock(p.clock.Now))
	}
	b := build.New(buildOpts...)

	ids := make(map[string]build.ActivityID, len(selected))
	for _, op := range selected {
		id := build.ActivityID{Kind: op.Type, Name: op.Name}

		logger := p.logger
		if o.Collector != nil {
			logger = o.Collector.Logger(logger, id.String())
		}
		logger = logger.With("activity_id", id.String())

		a, err := p.newActivity(op, id, logger, activity.NewStatusLine(id, logger, o.Status))
		if err != nil {
			return nil, err
		}

		var addOpts []build.AddOption
		if op.ContinueOnError {
			addOpts = append(addOpts, build.ContinueOnError())
		}
		for _, dep := range op.DependsOn {
			if depID, ok := ids[dep]; ok {
				addOpts = append(addOpts, build.DependsOn(depID))
			} else {
				p.logger.Debug("dropping dependency on unselected operation", "operation", op.Name, "dependency", dep)
			}
		}

		if err := b.AddActivity(id, a, addOpts...); err != nil {
			return nil, err
		}
		ids[op.Name] = id
	}
	return b, nil
}

func (p *Pipeline) selectOperations(names []string) ([]config.OperationConfig, error) {
	if len(names) == 0 {
		return p.cfg.Operations, nil
	}

	var unknown []string
	for _, name := range names {
		if _, ok := p.cfg.Operation(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown operations: %v (available: %v)", unknown, p.cfg.OperationNames())
	}

	var selected []config.OperationConfig
	for _, op := range p.cfg.Operations {
		if slices.Contains(names, op.Name) {
			selected = append(selected, op)
		}
	}
	return selected, nil
}

func (p *Pipeline) newActivity(op config.OperationConfig, id build.ActivityID, logger *slog.Logger, statusLine *activity.StatusLine) (build.Activity, error) {
	async := activities.AsyncOperation{
		ID:               id,
		Settings:         op.Settings,
		FailBuildOnError: !op.WarnOnly,
		Logger:           logger,
		StatusLine:       statusLine,
		Metrics:          p.opMetrics,
	}
	if p.clock != nil {
		async.Clock = p.clock
	}

	switch op.Type {
	case config.TypeREST:
		if p.client == nil {
			return nil, errors.New("no management client configured")
		}
		req := mgmtclient.Request{Method: op.Method, Path: op.Path, Headers: op.Headers}
		if len(op.Body) > 0 {
			req.Body = op.Body
		}
		return &activities.ManagementOperation{AsyncOperation: async, Client: p.client, Request: req}, nil
	case config.TypeSSH:
		if p.runner == nil {
			return nil, errors.New("no ssh host configured")
		}
		var jobOpts []sshclient.JobsOption
		jobOpts = append(jobOpts, sshclient.WithJobsLogger(logger))
		if p.cfg.SSH.JobDir != "" {
			jobOpts = append(jobOpts, sshclient.WithJobDir(p.cfg.SSH.JobDir))
		}
		return &activities.RemoteScript{
			AsyncOperation: async,
			Jobs:           sshclient.NewJobs(p.runner, jobOpts...),
			Script:         op.Script,
			OutputLines:    op.OutputLines,
		}, nil
	default:
		return nil, fmt.Errorf("operation %s: unsupported type %q", op.Name, op.Type)
	}
}

// flusher is implemented by registries that push, such as metrics.PushRegistry.
type flusher interface {
	Flush(ctx context.Context) error
}

// Execute runs b, records its metrics and pushes them when the registry
// pushes. The build error is returned; metric failures are only logged.
func (p *Pipeline) Execute(ctx context.Context, b *build.Build) error {
	err := b.Execute(ctx)

	p.buildMetrics.Record(b)
	if f, ok := p.registry.(flusher); ok {
		if ferr := f.Flush(context.WithoutCancel(ctx)); ferr != nil {
			p.logger.Warn("failed to push metrics", "error", ferr)
		}
	}
	return err
}
