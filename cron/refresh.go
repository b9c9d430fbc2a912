package cron

import (
	"context"
	"errors"
	"time"

	"github.com/dailyyoga/secretcache/cache"
	"github.com/dailyyoga/secretcache/logger"
	"github.com/dailyyoga/secretcache/routine"
	"go.uber.org/zap"
)

// defaultConcurrency bounds parallel RefreshNow calls of one task
const defaultConcurrency = 4

// Refresher reloads a secret ignoring its refresh deadline.
// *cache.SecretCache satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context, secretID string) error
}

var _ Refresher = (*cache.SecretCache)(nil)

// RefreshTask refreshes a fixed list of secret ids, at most concurrency at a
// time. Ids the store reports missing are recorded but do not fail the task.
type RefreshTask struct {
	name        string
	log         logger.Logger
	refresher   Refresher
	ids         []string
	concurrency int
}

var _ Task = (*RefreshTask)(nil)

// NewRefreshTask creates a task refreshing ids through r.
// A concurrency <= 0 uses the default of 4.
func NewRefreshTask(log logger.Logger, name string, r Refresher, ids []string, concurrency int) (*RefreshTask, error) {
	if r == nil {
		return nil, ErrNilRefresher
	}
	if len(ids) == 0 {
		return nil, ErrNoSecrets
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &RefreshTask{
		name:        name,
		log:         logger.OrNop(log),
		refresher:   r,
		ids:         append([]string(nil), ids...),
		concurrency: concurrency,
	}, nil
}

func (t *RefreshTask) Name() string {
	return t.name
}

// Run refreshes every id and stores a RefreshReport in the chain context.
// It fails with ErrRefreshFailed when any id failed.
func (t *RefreshTask) Run(ctx context.Context) error {
	report := t.refreshAll(ctx)
	addReport(ctx, report)

	if len(report.NotFound) > 0 {
		t.log.Warn("secrets missing from store",
			zap.String("task", t.name),
			zap.Strings("secret_ids", report.NotFound),
		)
	}
	if report.OK() {
		return nil
	}

	var first error
	for _, id := range t.ids {
		if err, ok := report.Failed[id]; ok {
			first = err
			break
		}
	}
	return ErrRefresh(len(report.Failed), report.Total, first)
}

func (t *RefreshTask) refreshAll(ctx context.Context) *RefreshReport {
	start := time.Now()
	errs := make([]error, len(t.ids))
	sem := make(chan struct{}, t.concurrency)
	runner := routine.New(t.log)

	for i, id := range t.ids {
		runner.GoNamed("refresh:"+id, func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			errs[i] = routine.Call(t.log, "refresh:"+id, func() error {
				return t.refresher.RefreshNow(ctx, id)
			})
		})
	}
	runner.Wait()

	report := &RefreshReport{
		Task:     t.name,
		Total:    len(t.ids),
		Failed:   make(map[string]error),
		Duration: time.Since(start),
	}
	for i, id := range t.ids {
		switch err := errs[i]; {
		case err == nil:
			report.Refreshed = append(report.Refreshed, id)
		case errors.Is(err, cache.ErrNotFound):
			report.NotFound = append(report.NotFound, id)
		default:
			report.Failed[id] = err
		}
	}
	return report
}
