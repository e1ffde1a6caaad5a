// Package sshclient runs commands on remote hosts over SSH and tracks
// detached remote jobs.
package sshclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nomis52/cloudops/operation"
)

// DefaultDialTimeout bounds the TCP connect and SSH handshake.
const DefaultDialTimeout = 15 * time.Second

// SSHClient manages a persistent SSH connection for running multiple commands.
type SSHClient struct {
	client *ssh.Client
}

type dialOptions struct {
	timeout         time.Duration
	hostKeyCallback ssh.HostKeyCallback
}

// Option configures New.
type Option func(*dialOptions)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *dialOptions) {
		o.timeout = d
	}
}

// WithHostKeyCallback verifies the server's host key. Without it any host key
// is accepted.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(o *dialOptions) {
		o.hostKeyCallback = cb
	}
}

// New connects to host (host:port) as user, authenticating with a PEM private
// key. Connection failures wrap operation.ErrConnectivity.
func New(host, user, privateKeyPEM string, opts ...Option) (*SSHClient, error) {
	o := dialOptions{
		timeout:         DefaultDialTimeout,
		hostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	signer, err := ssh.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: o.hostKeyCallback,
		Timeout:         o.timeout,
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, fmt.Errorf("%w: ssh %s@%s: %v", operation.ErrConnectivity, user, host, err)
	}

	return &SSHClient{client: client}, nil
}

// Run executes command in a new session and returns its output. If ctx is
// cancelled first the session is closed and ctx.Err() is returned.
func (c *SSHClient) Run(ctx context.Context, command string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := c.RunWithWriter(ctx, command, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// RunWithWriter executes command and streams its output to the writers. A nil
// writer discards that stream.
func (c *SSHClient) RunWithWriter(ctx context.Context, command string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("%w: opening ssh session: %v", operation.ErrConnectivity, err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to run command: %w", err)
		}
		return nil
	}
}

// Close closes the underlying SSH connection.
func (c *SSHClient) Close() error {
	return c.client.Close()
}
