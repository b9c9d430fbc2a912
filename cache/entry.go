package cache

import (
	"sync"
	"time"
)

// stageValue is a cached value together with the time it was fetched
type stageValue struct {
	value       *SecretValue
	refreshedAt time.Time
}

// entry is the cached state of one secret id: the values per version stage,
// refresh bookkeeping and the backoff state of failed refreshes.
type entry struct {
	id       string
	interval time.Duration

	mu          sync.Mutex
	stages      map[string]stageValue
	lastRefresh time.Time
	nextRefresh time.Time
	retry       retryState
	lastErr     error
	deleted     bool
}

func newEntry(id string, cfg *Config) *entry {
	return &entry{
		id:       id,
		interval: cfg.SecretRefreshInterval,
		stages:   make(map[string]stageValue),
		retry:    newRetryState(cfg),
	}
}

// needsRefresh reports whether a read of stage at now must go to the provider.
// While a failure is being backed off only the retry deadline matters, so a
// failing store is not called more often than the backoff allows.
func (e *entry) needsRefresh(now time.Time, stage string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.retry.failing() {
		return e.retry.isReady(now)
	}
	sv, ok := e.stages[stage]
	if !ok {
		return true
	}
	return now.Sub(sv.refreshedAt) >= e.interval
}

// applyFetchResult records the outcome of a provider call. On success value is
// stored under every stage it carries; on failure the cached values stay and
// the backoff advances. It returns the retry delay scheduled by a failure.
func (e *entry) applyFetchResult(value *SecretValue, err error, now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err
		return e.retry.recordFailure(now)
	}
	for _, stage := range value.VersionStages {
		e.stages[stage] = stageValue{value: value, refreshedAt: now}
	}
	e.lastRefresh = now
	e.nextRefresh = now.Add(e.interval)
	e.lastErr = nil
	e.retry.recordSuccess()
	return 0
}

// markDeleted drops every cached value. The store replaces a deleted entry on
// its next lookup.
func (e *entry) markDeleted() {
	e.mu.Lock()
	defer e.mu.Unlock()

	clear(e.stages)
	e.deleted = true
	e.lastErr = nil
	e.retry.recordSuccess()
}

func (e *entry) isDeleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted
}

// cached returns the stored value for stage, if any, and the error of the
// last failed refresh.
func (e *entry) cached(stage string) (*SecretValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sv, ok := e.stages[stage]; ok {
		return sv.value, e.lastErr
	}
	return nil, e.lastErr
}

// schedule returns the time of the last successful refresh and the deadline
// after which values fetched by it go stale.
func (e *entry) schedule() (last, next time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRefresh, e.nextRefresh
}
