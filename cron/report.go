package cron

import (
	"context"
	"sync"
	"time"
)

// RefreshReport is the outcome of one RefreshTask run
type RefreshReport struct {
	// Task is the name of the task that produced the report
	Task string
	// Total is the number of secret ids the task refreshed
	Total int
	// Refreshed lists ids refreshed successfully
	Refreshed []string
	// NotFound lists ids the store reported missing; they were dropped from the cache
	NotFound []string
	// Failed maps ids to their refresh error
	Failed map[string]error
	// Duration is the wall time of the run
	Duration time.Duration
}

// OK reports whether every secret refreshed or was confirmed missing
func (r *RefreshReport) OK() bool {
	return len(r.Failed) == 0
}

type contextKey string

const chainStateKey contextKey = "cron:chain_state"

// chainState collects the reports of one chain run
type chainState struct {
	mu      sync.Mutex
	reports []*RefreshReport
}

func withChainState(ctx context.Context) context.Context {
	return context.WithValue(ctx, chainStateKey, &chainState{})
}

func addReport(ctx context.Context, r *RefreshReport) {
	if s, ok := ctx.Value(chainStateKey).(*chainState); ok {
		s.mu.Lock()
		s.reports = append(s.reports, r)
		s.mu.Unlock()
	}
}

// ReportsFromContext returns the reports of refresh tasks that already ran in
// the current chain, oldest first. A task placed after a RefreshTask can use
// it to alert on failures.
func ReportsFromContext(ctx context.Context) []*RefreshReport {
	s, ok := ctx.Value(chainStateKey).(*chainState)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RefreshReport, len(s.reports))
	copy(out, s.reports)
	return out
}
