package cron

import (
	"context"
	"time"

	"github.com/dailyyoga/secretcache/logger"
	"github.com/dailyyoga/secretcache/routine"
	"go.uber.org/zap"
)

// Middleware is a function that wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares applies multiple middlewares to a task
// applyMiddlewares(task, mw1, mw2, mw3) results in mw1(mw2(mw3(task)))
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware turns a panicking task into a failed task. The returned
// error wraps routine.ErrPanicRecovered.
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				return routine.Call(log, "cron:"+next.Name(), func() error {
					return next.Run(ctx)
				})
			},
		}
	}
}

// loggingMiddleware wraps a task with logging for start, finish, and errors
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := time.Now()
				log.Debug("task started", zap.String("task", next.Name()))

				err := next.Run(ctx)

				duration := time.Since(start)
				if err != nil {
					log.Error("task failed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
						zap.Error(err),
					)
				} else {
					log.Info("task completed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
					)
				}
				return err
			},
		}
	}
}

// TimeoutMiddleware bounds every task run by d
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Run(ctx)
			},
		}
	}
}

// wrappedTask is an internal helper struct used to wrap tasks with middleware
type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}
