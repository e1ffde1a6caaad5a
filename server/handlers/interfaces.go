// Package handlers provides the gin handlers of the cloudops server.
//
// Each handler is in its own file. Handlers use interfaces to access server
// dependencies, avoiding circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/server/runner"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// BuildRunner can start build runs.
type BuildRunner interface {
	Run(trigger string, operations []string) error
	Status() runner.RunStatus
}

// StatusProvider provides the current run status and schedule.
type StatusProvider interface {
	Status() runner.RunStatus
	// NextRun returns the next scheduled run, or nil without a schedule.
	NextRun() *time.Time
}

// HistoryProvider provides access to completed runs.
type HistoryProvider interface {
	History() []runner.RunSummary
	Get(id string) (runner.RunStatus, bool)
}
