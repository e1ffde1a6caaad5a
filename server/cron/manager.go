package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Runnable is implemented by anything that can be triggered by the cron scheduler.
type Runnable interface {
	Run(operations []string) error
}

// CronTriggerManager manages multiple CronTrigger instances with different operations and schedules.
type CronTriggerManager struct {
	triggers []*CronTrigger
	logger   *slog.Logger
}

// NewCronTriggerManager creates one CronTrigger per spec, each calling
// runnable with the spec's operations. Specs are assumed to be validated
// against the configured operations; only the schedules are checked here.
func NewCronTriggerManager(specs []TriggerSpec, runnable Runnable, logger *slog.Logger) (*CronTriggerManager, error) {
	triggers := make([]*CronTrigger, 0, len(specs))
	for _, spec := range specs {
		operations := spec.Operations
		trigger, err := NewCronTrigger(spec.CronSpec, func() error {
			return runnable.Run(operations)
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				formatOperationList(operations), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"operations", formatOperationList(specs[i].Operations),
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	m.logger.Info("starting cron triggers", "trigger_count", len(m.triggers))
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

func formatOperationList(operations []string) string {
	if len(operations) == 0 {
		return allOperations
	}
	return strings.Join(operations, operationListSeparator)
}
