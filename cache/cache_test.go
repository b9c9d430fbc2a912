package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/secretcache/routine"
)

func TestSecretCache_GetSecretString(t *testing.T) {
	p := staticProvider(stringValue("v1", "abc"))
	sc, _ := newTestCache(t, nil, p)
	ctx := context.Background()

	got, err := sc.GetSecretString(ctx, "db-password", "")
	if err != nil {
		t.Fatalf("GetSecretString failed: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}

	_, err = sc.GetSecretBinary(ctx, "db-password", "")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if p.Calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.Calls())
	}
}

func TestSecretCache_GetSecretBinary(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10}
	sc, _ := newTestCache(t, nil, staticProvider(binaryValue("v1", payload)))
	ctx := context.Background()

	got, err := sc.GetSecretBinary(ctx, "tls-key", "")
	if err != nil {
		t.Fatalf("GetSecretBinary failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %v, got %v", payload, got)
	}

	got[0] = 0x42
	again, _ := sc.GetSecretBinary(ctx, "tls-key", "")
	if again[0] != 0x00 {
		t.Error("modifying a returned payload must not change the cache")
	}

	if _, err := sc.GetSecretString(ctx, "tls-key", ""); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestSecretCache_OneFetchPerInterval(t *testing.T) {
	p := staticProvider(stringValue("v1", "abc"))
	sc, clk := newTestCache(t, &Config{SecretRefreshInterval: 10 * time.Minute}, p)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := sc.GetSecretString(ctx, "id", ""); err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		clk.Advance(time.Minute)
	}
	if p.Calls() != 1 {
		t.Fatalf("expected 1 call within the interval, got %d", p.Calls())
	}

	clk.Advance(5 * time.Minute)
	for i := 0; i < 3; i++ {
		sc.GetSecretString(ctx, "id", "")
	}
	if p.Calls() != 2 {
		t.Errorf("expected 2 calls after the interval elapsed, got %d", p.Calls())
	}
}

func TestSecretCache_VersionStages(t *testing.T) {
	var stages []string
	var mu sync.Mutex
	p := &countingProvider{fn: func(_ context.Context, _, stage string) (*SecretValue, error) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
		switch stage {
		case "AWSCURRENT":
			return stringValue("v2", "current", "AWSCURRENT", "AWSPENDING"), nil
		case "AWSPREVIOUS":
			return stringValue("v1", "previous", "AWSPREVIOUS"), nil
		}
		return nil, ErrSecretNotFound("id", stage)
	}}
	sc, _ := newTestCache(t, nil, p)
	ctx := context.Background()

	if v, _ := sc.GetSecretString(ctx, "id", ""); v != "current" {
		t.Errorf("expected current, got %q", v)
	}
	if v, _ := sc.GetSecretString(ctx, "id", "AWSPENDING"); v != "current" {
		t.Errorf("expected AWSPENDING served from the same fetch, got %q", v)
	}
	if v, _ := sc.GetSecretString(ctx, "id", "AWSPREVIOUS"); v != "previous" {
		t.Errorf("expected previous, got %q", v)
	}
	if !slices.Equal(stages, []string{"AWSCURRENT", "AWSPREVIOUS"}) {
		t.Errorf("unexpected provider calls %v", stages)
	}
}

func TestSecretCache_CustomDefaultStage(t *testing.T) {
	var got atomic.Value
	p := &countingProvider{fn: func(_ context.Context, _, stage string) (*SecretValue, error) {
		got.Store(stage)
		return stringValue("v1", "x", stage), nil
	}}
	sc, _ := newTestCache(t, &Config{DefaultVersionStage: "AWSPENDING"}, p)

	if _, err := sc.GetSecretString(context.Background(), "id", ""); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Load() != "AWSPENDING" {
		t.Errorf("expected provider to receive AWSPENDING, got %v", got.Load())
	}
}

func TestSecretCache_StageNotFound(t *testing.T) {
	p := staticProvider(stringValue("v1", "x", "AWSPREVIOUS"))
	sc, _ := newTestCache(t, nil, p)

	_, err := sc.GetSecretString(context.Background(), "id", "")
	if !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

func TestSecretCache_UnlabelledResultTakesRequestedStage(t *testing.T) {
	v := stringValue("v1", "x")
	v.VersionStages = nil
	sc, _ := newTestCache(t, nil, staticProvider(v))

	if got, err := sc.GetSecretString(context.Background(), "id", "custom"); err != nil || got != "x" {
		t.Fatalf("expected x, got %q / %v", got, err)
	}
}

func TestSecretCache_ConcurrentGetsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		started <- struct{}{}
		<-release
		return stringValue("v1", "shared"), nil
	}}
	sc, _ := newTestCache(t, nil, p)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sc.GetSecretString(context.Background(), "shared-id", "")
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if p.Calls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", p.Calls())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil || results[i] != "shared" {
			t.Errorf("caller %d: got %q / %v", i, results[i], errs[i])
		}
	}
}

func TestSecretCache_ConcurrentGetsShareFailure(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetchErr := errors.New("service unavailable")
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		started <- struct{}{}
		<-release
		return nil, fetchErr
	}}
	sc, _ := newTestCache(t, nil, p)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sc.GetSecretString(context.Background(), "id", "")
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if p.Calls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", p.Calls())
	}
	for i, err := range errs {
		if !errors.Is(err, fetchErr) {
			t.Errorf("caller %d: expected %v, got %v", i, fetchErr, err)
		}
	}
}

func TestSecretCache_DifferentIDsFetchIndependently(t *testing.T) {
	release := make(chan struct{})
	p := &countingProvider{fn: func(_ context.Context, id, _ string) (*SecretValue, error) {
		if id == "slow" {
			<-release
		}
		return stringValue("v1", id), nil
	}}
	sc, _ := newTestCache(t, nil, p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc.GetSecretString(context.Background(), "slow", "")
	}()

	waitFor(t, func() bool { return p.Calls() == 1 })
	got, err := sc.GetSecretString(context.Background(), "fast", "")
	if err != nil || got != "fast" {
		t.Fatalf("fast id blocked or failed: %q / %v", got, err)
	}
	close(release)
	<-done
}

func TestSecretCache_CallerTimeoutDoesNotCancelFetch(t *testing.T) {
	release := make(chan struct{})
	p := &countingProvider{fn: func(ctx context.Context, _, _ string) (*SecretValue, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return stringValue("v1", "late"), nil
	}}
	sc, _ := newTestCache(t, nil, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sc.GetSecretString(ctx, "id", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	close(release)
	waitFor(t, func() bool {
		e := peekEntry(sc, "id")
		v, _ := e.cached(DefaultVersionStage)
		return v != nil
	})

	got, err := sc.GetSecretString(context.Background(), "id", "")
	if err != nil || got != "late" {
		t.Fatalf("expected the abandoned fetch to populate the cache, got %q / %v", got, err)
	}
	if p.Calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.Calls())
	}
}

func TestSecretCache_ServesStaleValueOnFailure(t *testing.T) {
	var fail atomic.Bool
	fetchErr := errors.New("throttling")
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		if fail.Load() {
			return nil, fetchErr
		}
		return stringValue("v1", "stale-but-ok"), nil
	}}
	rec := &countingRecorder{}
	sc, clk, logs := newObservedCache(t, &Config{Recorder: rec}, p)
	ctx := context.Background()

	if _, err := sc.GetSecretString(ctx, "id", ""); err != nil {
		t.Fatalf("initial get failed: %v", err)
	}

	fail.Store(true)
	clk.Advance(time.Hour)
	got, err := sc.GetSecretString(ctx, "id", "")
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if got != "stale-but-ok" {
		t.Errorf("expected stale value, got %q", got)
	}
	if rec.stale.Load() != 1 || rec.fetchErrors.Load() != 1 {
		t.Errorf("expected 1 stale read and 1 fetch error, got %d / %d", rec.stale.Load(), rec.fetchErrors.Load())
	}
	if n := logs.FilterMessage("serving stale secret after failed refresh").Len(); n != 1 {
		t.Errorf("expected 1 stale warning, got %d", n)
	}
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if f.String == "stale-but-ok" {
				t.Fatalf("secret payload leaked into log entry %q", entry.Message)
			}
		}
	}
}

func TestSecretCache_BackoffBetweenFailedRefreshes(t *testing.T) {
	var fail atomic.Bool
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		if fail.Load() {
			return nil, errors.New("unavailable")
		}
		return stringValue("v1", "cached"), nil
	}}
	sc, clk := newTestCache(t, &Config{
		ExceptionRetryDelayBase:    time.Second,
		ExceptionRetryGrowthFactor: 2,
		ExceptionRetryDelayMax:     10 * time.Second,
	}, p)
	ctx := context.Background()

	sc.GetSecretString(ctx, "id", "")
	fail.Store(true)
	clk.Advance(time.Hour)

	calls := p.Calls()
	for _, delay := range []time.Duration{1, 2, 4, 8, 10, 10} {
		if got, err := sc.GetSecretString(ctx, "id", ""); err != nil || got != "cached" {
			t.Fatalf("expected stale value, got %q / %v", got, err)
		}
		calls++
		if p.Calls() != calls {
			t.Fatalf("expected %d calls, got %d", calls, p.Calls())
		}

		clk.Advance(delay*time.Second - time.Millisecond)
		sc.GetSecretString(ctx, "id", "")
		if p.Calls() != calls {
			t.Fatalf("refresh retried before the %ds delay elapsed", delay)
		}
		clk.Advance(time.Millisecond)
	}
}

func TestSecretCache_FailureWithoutValue(t *testing.T) {
	fetchErr := errors.New("connection reset")
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		return nil, fetchErr
	}}
	sc, clk := newTestCache(t, nil, p)
	ctx := context.Background()

	if _, err := sc.GetSecretString(ctx, "id", ""); !errors.Is(err, fetchErr) {
		t.Fatalf("expected %v, got %v", fetchErr, err)
	}
	if _, err := sc.GetSecretString(ctx, "id", ""); !errors.Is(err, fetchErr) {
		t.Fatalf("expected the last error during backoff, got %v", err)
	}
	if p.Calls() != 1 {
		t.Errorf("expected no call during backoff, got %d calls", p.Calls())
	}

	clk.Advance(time.Second)
	sc.GetSecretString(ctx, "id", "")
	if p.Calls() != 2 {
		t.Errorf("expected a retry after the delay, got %d calls", p.Calls())
	}
}

type deleteHook struct {
	NopHook
	deleted atomic.Int32
}

func (h *deleteHook) OnDelete(string) { h.deleted.Add(1) }

func TestSecretCache_NotFoundDropsEntry(t *testing.T) {
	var gone atomic.Bool
	p := &countingProvider{fn: func(_ context.Context, id, stage string) (*SecretValue, error) {
		if gone.Load() {
			return nil, fmt.Errorf("remote: %w", ErrSecretNotFound(id, stage))
		}
		return stringValue("v1", "alive"), nil
	}}
	hook := &deleteHook{}
	sc, _ := newTestCache(t, &Config{Hook: hook}, p)
	ctx := context.Background()

	sc.GetSecretString(ctx, "id", "")
	gone.Store(true)

	if err := sc.RefreshNow(ctx, "id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if sc.Len() != 0 {
		t.Errorf("expected the entry to be dropped, cache holds %d", sc.Len())
	}
	if hook.deleted.Load() != 1 {
		t.Errorf("expected OnDelete once, got %d", hook.deleted.Load())
	}

	if _, err := sc.GetSecretString(ctx, "id", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound instead of a stale value, got %v", err)
	}
	if _, err := sc.GetSecretString(ctx, "id", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if p.Calls() != 4 {
		t.Errorf("NotFound must not be backed off: expected 4 calls, got %d", p.Calls())
	}
}

func TestSecretCache_NilValueIsNotFound(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		return nil, nil
	}}
	sc, _ := newTestCache(t, nil, p)
	if _, err := sc.GetSecretValue(context.Background(), "id", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSecretCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	p := &countingProvider{fn: func(_ context.Context, id, _ string) (*SecretValue, error) {
		return stringValue("v1", id), nil
	}}
	rec := &countingRecorder{}
	sc, _ := newTestCache(t, &Config{MaxCacheSize: 2, Recorder: rec}, p)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		if _, err := sc.GetSecretString(ctx, id, ""); err != nil {
			t.Fatalf("get %s failed: %v", id, err)
		}
	}
	if sc.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", sc.Len())
	}
	if !slices.Equal(sc.store.keys(), []string{"B", "C"}) {
		t.Errorf("expected A to be evicted, got %v", sc.store.keys())
	}
	if rec.evictions.Load() != 1 {
		t.Errorf("expected 1 eviction, got %d", rec.evictions.Load())
	}

	sc.GetSecretString(ctx, "A", "")
	if p.Calls() != 4 {
		t.Errorf("evicted id must be fetched again, got %d calls", p.Calls())
	}
}

func TestSecretCache_RefreshNow(t *testing.T) {
	var version atomic.Int32
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		n := version.Add(1)
		return stringValue(fmt.Sprintf("v%d", n), fmt.Sprintf("value-%d", n)), nil
	}}
	sc, _ := newTestCache(t, nil, p)
	ctx := context.Background()

	if got, _ := sc.GetSecretString(ctx, "id", ""); got != "value-1" {
		t.Fatalf("expected value-1, got %q", got)
	}
	if err := sc.RefreshNow(ctx, "id"); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if got, _ := sc.GetSecretString(ctx, "id", ""); got != "value-2" {
		t.Errorf("expected value-2 after RefreshNow, got %q", got)
	}
	if p.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", p.Calls())
	}
}

func TestSecretCache_RefreshNowFailureKeepsValue(t *testing.T) {
	var fail atomic.Bool
	fetchErr := errors.New("timeout")
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		if fail.Load() {
			return nil, fetchErr
		}
		return stringValue("v1", "kept"), nil
	}}
	sc, _ := newTestCache(t, nil, p)
	ctx := context.Background()

	sc.GetSecretString(ctx, "id", "")
	fail.Store(true)
	if err := sc.RefreshNow(ctx, "id"); !errors.Is(err, fetchErr) {
		t.Fatalf("expected %v, got %v", fetchErr, err)
	}
	if got, err := sc.GetSecretString(ctx, "id", ""); err != nil || got != "kept" {
		t.Errorf("expected kept value, got %q / %v", got, err)
	}
}

func TestSecretCache_RemoveID(t *testing.T) {
	p := staticProvider(stringValue("v1", "x"))
	hook := &deleteHook{}
	sc, _ := newTestCache(t, &Config{Hook: hook}, p)
	ctx := context.Background()

	sc.GetSecretString(ctx, "id", "")
	sc.RemoveID("id")
	sc.RemoveID("unknown")
	if sc.Len() != 0 {
		t.Errorf("expected empty cache, got %d", sc.Len())
	}
	if hook.deleted.Load() != 1 {
		t.Errorf("expected OnDelete once, got %d", hook.deleted.Load())
	}

	sc.GetSecretString(ctx, "id", "")
	if p.Calls() != 2 {
		t.Errorf("expected a refetch after RemoveID, got %d calls", p.Calls())
	}
}

// xorHook keeps payloads obfuscated in memory and counts fetch callbacks
type xorHook struct {
	before, after atomic.Int32
	stored        atomic.Value
}

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out
}

func (h *xorHook) Put(v *SecretValue) (*SecretValue, error) {
	out := v.Clone()
	out.SecretBinary = xor([]byte(*v.SecretString))
	out.SecretString = nil
	h.stored.Store(out.SecretBinary)
	return out, nil
}

func (h *xorHook) Get(v *SecretValue) (*SecretValue, error) {
	s := string(xor(v.SecretBinary))
	v.SecretString = &s
	v.SecretBinary = nil
	return v, nil
}

func (h *xorHook) BeforeFetch(string, string) { h.before.Add(1) }

func (h *xorHook) AfterFetch(string, string, error) { h.after.Add(1) }

func (h *xorHook) OnDelete(string) {}

func TestSecretCache_Hook(t *testing.T) {
	hook := &xorHook{}
	sc, _ := newTestCache(t, &Config{Hook: hook}, staticProvider(stringValue("v1", "plain")))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := sc.GetSecretString(ctx, "id", "")
		if err != nil || got != "plain" {
			t.Fatalf("expected plain, got %q / %v", got, err)
		}
	}
	if stored := hook.stored.Load().([]byte); string(stored) == "plain" {
		t.Error("stored form must be transformed by the hook")
	}
	if hook.before.Load() != 1 || hook.after.Load() != 1 {
		t.Errorf("expected one fetch callback pair, got %d / %d", hook.before.Load(), hook.after.Load())
	}
}

type failingPutHook struct{ NopHook }

func (failingPutHook) Put(*SecretValue) (*SecretValue, error) {
	return nil, errors.New("kms unavailable")
}

func TestSecretCache_HookPutFailure(t *testing.T) {
	sc, _ := newTestCache(t, &Config{Hook: failingPutHook{}}, staticProvider(stringValue("v1", "x")))
	if _, err := sc.GetSecretString(context.Background(), "id", ""); err == nil {
		t.Fatal("expected the hook error")
	}
}

func TestSecretCache_ProviderPanic(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, string, string) (*SecretValue, error) {
		panic("nil client")
	}}
	sc, _ := newTestCache(t, nil, p)

	_, err := sc.GetSecretString(context.Background(), "id", "")
	if !errors.Is(err, routine.ErrPanicRecovered) {
		t.Fatalf("expected ErrPanicRecovered, got %v", err)
	}
}

func TestSecretCache_Recorder(t *testing.T) {
	rec := &countingRecorder{}
	sc, _ := newTestCache(t, &Config{Recorder: rec}, staticProvider(stringValue("v1", "x")))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sc.GetSecretString(ctx, "id", "")
	}
	if rec.misses.Load() != 1 || rec.hits.Load() != 2 || rec.fetches.Load() != 1 {
		t.Errorf("unexpected counts: misses=%d hits=%d fetches=%d",
			rec.misses.Load(), rec.hits.Load(), rec.fetches.Load())
	}
}

func TestSecretCache_InvalidID(t *testing.T) {
	sc, _ := newTestCache(t, nil, staticProvider(stringValue("v1", "x")))
	if _, err := sc.GetSecretString(context.Background(), "", ""); !errors.Is(err, ErrInvalidSecretID) {
		t.Errorf("expected ErrInvalidSecretID, got %v", err)
	}
	if err := sc.RefreshNow(context.Background(), ""); !errors.Is(err, ErrInvalidSecretID) {
		t.Errorf("expected ErrInvalidSecretID, got %v", err)
	}
}

func TestSecretCache_Close(t *testing.T) {
	sc, _ := newTestCache(t, nil, staticProvider(stringValue("v1", "x")))
	ctx := context.Background()

	sc.GetSecretString(ctx, "id", "")
	sc.Close()
	sc.Close()

	if sc.Len() != 0 {
		t.Errorf("expected empty cache after Close, got %d", sc.Len())
	}
	if _, err := sc.GetSecretString(ctx, "id", ""); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("expected ErrCacheClosed, got %v", err)
	}
	if err := sc.RefreshNow(ctx, "id"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("expected ErrCacheClosed, got %v", err)
	}
}

// stageProvider blocks every call until release is closed and tracks how
// many calls run at once. labels lists the stages each result carries; nil
// labels a result with the requested stage only.
type stageProvider struct {
	countingProvider
	inflight atomic.Int32
	peak     atomic.Int32
}

func newStageProvider(release <-chan struct{}, started chan<- string, labels []string) *stageProvider {
	p := &stageProvider{}
	p.fn = func(_ context.Context, _, stage string) (*SecretValue, error) {
		n := p.inflight.Add(1)
		defer p.inflight.Add(-1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		started <- stage
		<-release
		stages := labels
		if stages == nil {
			stages = []string{stage}
		}
		return stringValue("v1", "value-"+stage, stages...), nil
	}
	return p
}

func TestSecretCache_OneFetchPerIDAcrossStages(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	p := newStageProvider(release, started, nil)
	sc, _ := newTestCache(t, nil, p)

	var wg sync.WaitGroup
	var current, pending string
	var currentErr, pendingErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, currentErr = sc.GetSecretString(context.Background(), "A", "AWSCURRENT")
	}()
	<-started
	go func() {
		defer wg.Done()
		pending, pendingErr = sc.GetSecretString(context.Background(), "A", "AWSPENDING")
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if p.peak.Load() != 1 {
		t.Fatalf("expected one provider call at a time for a secret id, got %d", p.peak.Load())
	}
	if p.Calls() != 2 {
		t.Errorf("expected one call per stage, got %d", p.Calls())
	}
	if currentErr != nil || current != "value-AWSCURRENT" {
		t.Errorf("AWSCURRENT: got %q / %v", current, currentErr)
	}
	if pendingErr != nil || pending != "value-AWSPENDING" {
		t.Errorf("AWSPENDING: got %q / %v", pending, pendingErr)
	}
}

func TestSecretCache_SharedFetchCoversOtherStage(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	p := newStageProvider(release, started, []string{"AWSCURRENT", "AWSPENDING"})
	sc, _ := newTestCache(t, nil, p)

	var wg sync.WaitGroup
	var pending string
	var pendingErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sc.GetSecretString(context.Background(), "A", "AWSCURRENT")
	}()
	<-started
	go func() {
		defer wg.Done()
		pending, pendingErr = sc.GetSecretString(context.Background(), "A", "AWSPENDING")
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if p.Calls() != 1 {
		t.Errorf("expected the AWSCURRENT fetch to serve AWSPENDING, got %d calls", p.Calls())
	}
	if pendingErr != nil || pending != "value-AWSCURRENT" {
		t.Errorf("AWSPENDING: got %q / %v", pending, pendingErr)
	}
}

type panickingDeleteHook struct{ NopHook }

func (panickingDeleteHook) OnDelete(string) { panic("boom") }

func TestSecretCache_OnDeletePanicIsContained(t *testing.T) {
	p := &countingProvider{fn: func(_ context.Context, id, stage string) (*SecretValue, error) {
		return nil, ErrSecretNotFound(id, stage)
	}}
	sc, _, logs := newObservedCache(t, &Config{Hook: panickingDeleteHook{}}, p)

	_, err := sc.GetSecretString(context.Background(), "gone", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if sc.Len() != 0 {
		t.Errorf("expected the entry to be dropped, cache holds %d", sc.Len())
	}
	if logs.FilterMessage("secret not found, dropped from cache").Len() != 1 {
		t.Error("expected the drop to be logged")
	}
	if logs.FilterMessage("goroutine panicked").Len() != 1 {
		t.Error("expected the hook panic to be logged")
	}
}

func TestSecretCache_RemoveIDPanicIsContained(t *testing.T) {
	sc, _ := newTestCache(t, &Config{Hook: panickingDeleteHook{}}, staticProvider(stringValue("v1", "x")))
	sc.GetSecretString(context.Background(), "id", "")

	sc.RemoveID("id")
	if sc.Len() != 0 {
		t.Errorf("expected empty cache, got %d", sc.Len())
	}
}
