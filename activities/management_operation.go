package activities

import (
	"errors"

	"github.com/nomis52/cloudops/clients/mgmtclient"
	"github.com/nomis52/cloudops/operation"
)

// ManagementOperation starts an operation through the management REST API and
// polls it to completion.
type ManagementOperation struct {
	AsyncOperation

	Client  *mgmtclient.Client
	Request mgmtclient.Request
}

func (a *ManagementOperation) Init() error {
	if a.Client == nil {
		return errors.New("management client is required")
	}
	if a.Request.Path == "" {
		return errors.New("request path is required")
	}

	a.Invoker = a.Client.Invoker(a.Request)
	a.Poller = operation.PollerFunc(a.Client.OperationStatus)
	return a.AsyncOperation.Init()
}
