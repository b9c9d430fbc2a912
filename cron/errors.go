package cron

import (
	"fmt"
	"time"
)

var (
	// ErrNoTasks is returned when attempting to add a chain job with no tasks
	ErrNoTasks = fmt.Errorf("cron: no tasks provided")

	// ErrInvalidSpec is returned when a cron spec string is invalid
	ErrInvalidSpec = fmt.Errorf("cron: invalid cron spec")

	// ErrCronClosed is returned when attempting to operate on a closed cron manager
	ErrCronClosed = fmt.Errorf("cron: cron manager is closed")

	// ErrNoSecrets is returned when a refresh task is created without secret ids
	ErrNoSecrets = fmt.Errorf("cron: no secret ids provided")

	// ErrNilRefresher is returned when a refresh task is created without a refresher
	ErrNilRefresher = fmt.Errorf("cron: refresher is required")

	// ErrRefreshFailed is returned by a refresh task when some secrets failed to refresh
	ErrRefreshFailed = fmt.Errorf("cron: secret refresh failed")
)

// ErrSpec wraps a cron spec parse failure
func ErrSpec(spec string, err error) error {
	return fmt.Errorf("%w %q: %v", ErrInvalidSpec, spec, err)
}

// ErrRefresh reports how many secrets failed to refresh, wrapping the first failure
func ErrRefresh(failed, total int, first error) error {
	return fmt.Errorf("%w: %d of %d secrets: %w", ErrRefreshFailed, failed, total, first)
}

// ErrInvalidConcurrency returns an error for a negative refresh concurrency
func ErrInvalidConcurrency(n int) error {
	return fmt.Errorf("cron: invalid concurrency %d (must be >= 0)", n)
}

// ErrInvalidTimeout returns an error for a negative job timeout
func ErrInvalidTimeout(d time.Duration) error {
	return fmt.Errorf("cron: invalid timeout %v (must be >= 0)", d)
}
