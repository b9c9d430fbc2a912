// Package cron schedules periodic secret cache jobs on top of robfig/cron.
//
// Jobs are chains of tasks run sequentially; a failing task aborts the rest of
// its chain. The RefreshTask keeps a fixed set of secrets warm by calling
// RefreshNow on a schedule, so hot secrets are reloaded before readers find
// them stale.
package cron

import (
	"context"

	"github.com/dailyyoga/secretcache/logger"
)

// Task is the interface for a cron task
// Each task must have a unique name within its chain
type Task interface {
	// Name returns the identifier of this task
	Name() string
	// Run executes the task with the given context
	// Reports of earlier refresh tasks in the chain are available through
	// ReportsFromContext
	Run(ctx context.Context) error
}

// Chain represents a chain of tasks that execute sequentially
type Chain struct {
	// Name is the name of the chain
	Name string
	// Spec is the cron spec for the chain
	Spec string
	// Tasks are the tasks in the chain
	Tasks []Task
}

// Cron is the interface for managing cron jobs
type Cron interface {
	// Start begins the cron scheduler
	Start()
	// Close stops the cron scheduler and waits for running jobs to complete
	Close()
	// AddTasks adds a chain of tasks to be executed according to the cron spec
	// The spec follows the standard cron format with a leading seconds field;
	// descriptors such as "@every 5m" are accepted too
	AddTasks(name string, spec string, tasks ...Task) error
	// AddChain is alias for AddTasks
	AddChain(chain Chain) error
}

// NewCron creates a new cron manager with the given logger and middlewares
// Middlewares are applied to all tasks in the order they are provided, after
// the built-in recovery and logging middlewares
func NewCron(log logger.Logger, mws ...Middleware) Cron {
	log = logger.OrNop(log)
	defaultMws := []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	return newCronManager(log, append(defaultMws, mws...)...)
}
