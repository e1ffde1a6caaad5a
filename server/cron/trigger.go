// Package cron provides cron-based scheduling for triggering build runs.
//
// The CronTrigger type calls a function according to a cron schedule.
// It is designed to be started once and run until the context is cancelled.
//
// Example usage:
//
//	trigger, err := cron.NewCronTrigger("0 2 * * *", func() error {
//	    return r.Run(runner.TriggerCron, nil)
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronTrigger calls a function according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	run      func() error
	logger   *slog.Logger
	now      func() time.Time
}

// NewCronTrigger creates a new CronTrigger with the given cron specification.
// The spec follows standard cron format (5 fields: minute, hour, day, month,
// weekday) or a descriptor such as @daily.
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec string, run func() error, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		run:      run,
		logger:   logger.With("schedule", spec),
		now:      time.Now,
	}, nil
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(ct.now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.NextRun()
		wait := time.Until(nextRun)

		ct.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			ct.executeRun()
		}
	}
}

func (ct *CronTrigger) executeRun() {
	ct.logger.Info("starting scheduled run")

	if err := ct.run(); err != nil {
		ct.logger.Warn("scheduled run could not start", "error", err)
	}
}
