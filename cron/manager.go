package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/dailyyoga/secretcache/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// chainJob represents a chain of tasks that execute sequentially
type chainJob struct {
	name   string
	tasks  []Task
	logger logger.Logger
	ctx    context.Context
}

// Run executes all tasks in the chain sequentially
// If any task fails, the chain is aborted and subsequent tasks are not executed
func (j *chainJob) Run() {
	ctx := withChainState(j.ctx)

	j.logger.Debug("chain job started", zap.String("chain_name", j.name))

	for _, task := range j.tasks {
		if err := task.Run(ctx); err != nil {
			j.logger.Warn("chain job aborted due to task failure",
				zap.String("chain_name", j.name),
				zap.String("task_name", task.Name()),
				zap.Error(err),
			)
			return
		}
	}

	j.logger.Debug("chain job completed", zap.String("chain_name", j.name))
}

// cronManager is the default implementation of the Cron interface
type cronManager struct {
	cron        *cron.Cron
	middlewares []Middleware
	logger      logger.Logger

	// ctx is the parent of every chain run, canceled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// newCronManager creates a new cron manager instance
// A chain still running when its next tick fires is skipped for that tick.
func newCronManager(log logger.Logger, mws ...Middleware) *cronManager {
	cl := cronLogger{logger: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &cronManager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		middlewares: mws,
		logger:      log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the cron scheduler
func (m *cronManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.cron.Start()
}

// Close cancels running chains, stops the scheduler and waits for running
// jobs to complete. Close is idempotent.
func (m *cronManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	<-m.cron.Stop().Done()
	m.logger.Info("cron stopped")
}

// AddTasks adds a chain of tasks to be executed according to the cron spec
// The spec follows the standard cron format with support for seconds (6 fields)
// Example: "0 */5 * * * *" (every five minutes at second 0)
func (m *cronManager) AddTasks(name, spec string, tasks ...Task) error {
	if len(tasks) == 0 {
		return ErrNoTasks
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrCronClosed
	}

	wrappedTasks := make([]Task, len(tasks))
	for i, task := range tasks {
		// prefix with the chain name for logging
		wrapTask := &wrappedTask{
			name: fmt.Sprintf("%s:%s", name, task.Name()),
			exec: task.Run,
		}
		wrappedTasks[i] = applyMiddlewares(wrapTask, m.middlewares...)
	}

	job := &chainJob{
		name:   name,
		tasks:  wrappedTasks,
		logger: m.logger,
		ctx:    m.ctx,
	}

	if _, err := m.cron.AddJob(spec, job); err != nil {
		return ErrSpec(spec, err)
	}

	m.logger.Info("chain added",
		zap.String("chain_name", name),
		zap.String("spec", spec),
		zap.Int("task_count", len(tasks)),
	)

	return nil
}

// AddChain is alias for AddTasks
func (m *cronManager) AddChain(chain Chain) error {
	return m.AddTasks(chain.Name, chain.Spec, chain.Tasks...)
}

// cronLogger adapts logger.Logger to the robfig/cron logging interface
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
