package activities

import (
	"context"
	"errors"
	"strings"

	"github.com/nomis52/cloudops/clients/sshclient"
	"github.com/nomis52/cloudops/operation"
)

// DefaultOutputLines is how much of a failed job's output is logged.
const DefaultOutputLines = 20

// RemoteScript runs a shell script as a detached job on a remote host and
// polls its exit marker. When the job fails its last output lines are logged.
type RemoteScript struct {
	AsyncOperation

	Jobs        *sshclient.Jobs
	Script      string
	OutputLines int
}

func (a *RemoteScript) Init() error {
	if a.Jobs == nil {
		return errors.New("ssh jobs are required")
	}
	if strings.TrimSpace(a.Script) == "" {
		return errors.New("script is required")
	}
	if a.OutputLines <= 0 {
		a.OutputLines = DefaultOutputLines
	}

	a.Invoker = operation.InvokerFunc(func(ctx context.Context) (operation.Handle, error) {
		return a.Jobs.StartJob(ctx, a.Script)
	})
	a.Poller = operation.PollerFunc(a.Jobs.JobStatus)
	a.AfterFailure = a.logOutput
	return a.AsyncOperation.Init()
}

func (a *RemoteScript) logOutput(ctx context.Context, o operation.Outcome) {
	if o.Handle == "" || ctx.Err() != nil {
		return
	}
	out, err := a.Jobs.JobOutput(ctx, o.Handle, a.OutputLines)
	if err != nil {
		a.Logger.Warn("could not read remote job output", "handle", string(o.Handle), "error", err)
		return
	}
	a.Logger.Error("remote job output", "handle", string(o.Handle), "output", strings.TrimSpace(out))
}
