// Package routine provides goroutine execution with panic recovery.
//
// Provider and hook code is user supplied; a panic inside it must surface as
// an error for the waiting callers instead of taking the process down.
package routine

import (
	"runtime/debug"
	"sync"

	"github.com/dailyyoga/secretcache/logger"
	"go.uber.org/zap"
)

// Runner starts goroutines with panic recovery and waits for them
type Runner interface {
	// Go executes fn in a new goroutine with panic recovery
	Go(fn func())

	// GoNamed executes fn in a new goroutine; name is used for logging
	GoNamed(name string, fn func())

	// Wait waits for all goroutines started by this runner to complete
	Wait()
}

type defaultRunner struct {
	log logger.Logger
	wg  sync.WaitGroup
}

// New creates a new Runner with the given logger
func New(log logger.Logger) Runner {
	return &defaultRunner{log: logger.OrNop(log)}
}

func (r *defaultRunner) Go(fn func()) {
	r.GoNamed("", fn)
}

func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logPanic(r.log, name, rec)
			}
		}()
		fn()
	}()
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

// Call runs fn on the calling goroutine. A panic in fn is logged and returned
// as an error wrapping ErrPanicRecovered.
func Call(log logger.Logger, name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logPanic(logger.OrNop(log), name, rec)
			err = ErrPanic(rec)
		}
	}()
	return fn()
}

func logPanic(log logger.Logger, name string, rec any) {
	fields := []zap.Field{
		zap.Any("panic", rec),
		zap.String("stack", string(debug.Stack())),
	}
	if name != "" {
		fields = append([]zap.Field{zap.String("routine", name)}, fields...)
	}
	log.Error("goroutine panicked", fields...)
}
