package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nomis52/cloudops/clients/sshclient"
	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/operation"
)

// lazyRunner dials the SSH host on first use and redials after the connection
// is lost, so an unreachable host faults the operation using it instead of
// failing pipeline construction.
type lazyRunner struct {
	cfg    config.SSHConfig
	key    string
	logger *slog.Logger
	dial   func(host, user, key string, opts ...sshclient.Option) (*sshclient.SSHClient, error)

	mu     sync.Mutex
	client *sshclient.SSHClient
}

func newLazyRunner(cfg config.SSHConfig, key string, logger *slog.Logger) *lazyRunner {
	return &lazyRunner{
		cfg:    cfg,
		key:    key,
		logger: logger.With("component", "ssh", "host", cfg.Address()),
		dial:   sshclient.New,
	}
}

func (r *lazyRunner) Run(ctx context.Context, command string) (string, string, error) {
	client, err := r.connect()
	if err != nil {
		return "", "", err
	}

	stdout, stderr, err := client.Run(ctx, command)
	if err != nil && errors.Is(err, operation.ErrConnectivity) {
		r.reset(client)
	}
	return stdout, stderr, err
}

func (r *lazyRunner) connect() (*sshclient.SSHClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := r.dial(r.cfg.Address(), r.cfg.User, r.key, sshclient.WithDialTimeout(r.cfg.DialTimeout))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("ssh connection established")
	r.client = client
	return client, nil
}

func (r *lazyRunner) reset(client *sshclient.SSHClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == client {
		_ = client.Close()
		r.client = nil
		r.logger.Warn("ssh connection lost, will redial")
	}
}

func (r *lazyRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
