package sshclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nomis52/cloudops/operation"
)

// DefaultJobDir is where job logs and exit markers are kept on the remote host.
const DefaultJobDir = "/tmp/cloudops-jobs"

const (
	markerRunning = "running"
	markerMissing = "missing"
)

// ErrUnknownJob is returned by JobStatus when the remote host has no record of a job.
var ErrUnknownJob = errors.New("unknown remote job")

// Runner runs a shell command on a remote host. *SSHClient implements it.
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, err error)
}

// Jobs starts scripts detached on a remote host and reports their status.
// A job writes its exit code to <dir>/<handle>.exit when it finishes; until
// then it is in progress.
type Jobs struct {
	runner Runner
	dir    string
	logger *slog.Logger
}

// JobsOption configures Jobs.
type JobsOption func(*Jobs)

// WithJobDir overrides DefaultJobDir.
func WithJobDir(dir string) JobsOption {
	return func(j *Jobs) {
		j.dir = strings.TrimSuffix(dir, "/")
	}
}

// WithJobsLogger sets a custom logger
func WithJobsLogger(logger *slog.Logger) JobsOption {
	return func(j *Jobs) {
		j.logger = logger
	}
}

// NewJobs creates a job tracker running commands through runner.
func NewJobs(runner Runner, opts ...JobsOption) *Jobs {
	j := &Jobs{
		runner: runner,
		dir:    DefaultJobDir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// StartJob launches script in the background and returns its handle.
func (j *Jobs) StartJob(ctx context.Context, script string) (operation.Handle, error) {
	if strings.TrimSpace(script) == "" {
		return "", errors.New("script is empty")
	}

	id := uuid.NewString()
	exitFile := j.file(id, "exit")

	// The script runs in its own shell so an explicit exit still records the marker.
	// The marker is renamed into place so a reader never sees a partial write.
	inner := fmt.Sprintf("sh -c %s; echo $? > %s.tmp && mv %s.tmp %s",
		shellQuote(script), shellQuote(exitFile), shellQuote(exitFile), shellQuote(exitFile))
	// The log is created in the foreground so that JobStatus sees the job as soon
	// as StartJob returns. Only the nohup is backgrounded.
	logFile := shellQuote(j.file(id, "log"))
	command := fmt.Sprintf("mkdir -p %s && : > %s && { nohup sh -c %s >> %s 2>&1 < /dev/null & }",
		shellQuote(j.dir), logFile, shellQuote(inner), logFile)

	if _, stderr, err := j.runner.Run(ctx, command); err != nil {
		return "", fmt.Errorf("starting remote job: %w (stderr: %s)", err, strings.TrimSpace(stderr))
	}

	j.logger.Debug("remote job started", "handle", id, "dir", j.dir)
	return operation.Handle(id), nil
}

// JobStatus reads the job's exit marker: absent means in progress, 0 means
// succeeded and any other code means failed.
func (j *Jobs) JobStatus(ctx context.Context, handle operation.Handle) (operation.Status, error) {
	id, err := j.validate(handle)
	if err != nil {
		return 0, err
	}

	exitFile := shellQuote(j.file(id, "exit"))
	command := fmt.Sprintf("if [ -f %s ]; then cat %s; elif [ -f %s ]; then echo %s; else echo %s; fi",
		exitFile, exitFile, shellQuote(j.file(id, "log")), markerRunning, markerMissing)

	stdout, stderr, err := j.runner.Run(ctx, command)
	if err != nil {
		return 0, fmt.Errorf("checking remote job %s: %w (stderr: %s)", id, err, strings.TrimSpace(stderr))
	}

	out := strings.TrimSpace(stdout)
	switch out {
	case markerRunning:
		return operation.StatusInProgress, nil
	case markerMissing:
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	code, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("%w: job %s exit marker %q", operation.ErrUnknownStatus, id, out)
	}
	if code == 0 {
		return operation.StatusSucceeded, nil
	}
	j.logger.Debug("remote job exited non-zero", "handle", id, "exit_code", code)
	return operation.StatusFailed, nil
}

// JobOutput returns the last lines of the job's combined output.
func (j *Jobs) JobOutput(ctx context.Context, handle operation.Handle, lines int) (string, error) {
	id, err := j.validate(handle)
	if err != nil {
		return "", err
	}
	if lines <= 0 {
		lines = 20
	}
	stdout, _, err := j.runner.Run(ctx, fmt.Sprintf("tail -n %d %s", lines, shellQuote(j.file(id, "log"))))
	if err != nil {
		return "", fmt.Errorf("reading output of remote job %s: %w", id, err)
	}
	return stdout, nil
}

// validate rejects anything that is not a handle StartJob could have produced,
// so handles are never interpolated into commands unchecked.
func (j *Jobs) validate(handle operation.Handle) (string, error) {
	if handle == "" {
		return "", operation.ErrEmptyHandle
	}
	id, err := uuid.Parse(string(handle))
	if err != nil {
		return "", fmt.Errorf("%w: malformed handle %q", ErrUnknownJob, handle)
	}
	return id.String(), nil
}

func (j *Jobs) file(id, ext string) string {
	return path.Join(j.dir, id+"."+ext)
}

// shellQuote wraps s in single quotes for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
