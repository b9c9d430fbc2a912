package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingProvider wraps fn and counts provider calls
type countingProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, secretID, versionStage string) (*SecretValue, error)
}

func (p *countingProvider) FetchSecretValue(ctx context.Context, secretID, versionStage string) (*SecretValue, error) {
	p.calls.Add(1)
	return p.fn(ctx, secretID, versionStage)
}

func (p *countingProvider) Calls() int {
	return int(p.calls.Load())
}

type countingRecorder struct {
	hits, misses, fetches, fetchErrors, stale, evictions atomic.Int32
}

func (r *countingRecorder) Hit() { r.hits.Add(1) }
func (r *countingRecorder) Miss() { r.misses.Add(1) }
func (r *countingRecorder) Fetch(err error, _ time.Duration) {
	r.fetches.Add(1)
	if err != nil {
		r.fetchErrors.Add(1)
	}
}
func (r *countingRecorder) Stale() { r.stale.Add(1) }
func (r *countingRecorder) Eviction() { r.evictions.Add(1) }

func stringValue(versionID, payload string, stages ...string) *SecretValue {
	if len(stages) == 0 {
		stages = []string{DefaultVersionStage}
	}
	return &SecretValue{
		Name:          "test-secret",
		VersionID:     versionID,
		VersionStages: stages,
		SecretString:  &payload,
	}
}

func binaryValue(versionID string, payload []byte, stages ...string) *SecretValue {
	if len(stages) == 0 {
		stages = []string{DefaultVersionStage}
	}
	return &SecretValue{
		Name:          "test-secret",
		VersionID:     versionID,
		VersionStages: stages,
		SecretBinary:  payload,
	}
}

// staticProvider always returns v
func staticProvider(v *SecretValue) *countingProvider {
	return &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		return v, nil
	}}
}

func newTestCache(t *testing.T, cfg *Config, p Provider) (*SecretCache, *fakeClock) {
	t.Helper()
	sc, err := New(zap.NewNop(), cfg, p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	clk := newFakeClock()
	sc.now = clk.Now
	return sc, clk
}

func newObservedCache(t *testing.T, cfg *Config, p Provider) (*SecretCache, *fakeClock, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	sc, err := New(zap.New(core), cfg, p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	clk := newFakeClock()
	sc.now = clk.Now
	return sc, clk, recorded
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func peekEntry(sc *SecretCache, id string) *entry {
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	e, _ := sc.store.entries.Peek(id)
	return e
}
