// Package cache provides an in-process cache in front of a remote secret
// store.
//
// The cache package follows go-kit conventions:
// - Interface-driven collaborators (Provider, Hook, Recorder) for testability
// - Uses logger.Logger interface for unified logging
// - Uses routine package so provider panics surface as errors
// - Configuration with validation and defaults
// - Structured error handling with errors.Is sentinels
//
// Refresh is demand driven: the first caller that observes a stale or missing
// value fetches it, concurrent callers for the same secret and stage wait for
// that fetch, and a failed refresh keeps serving the previous value while the
// retry delay grows exponentially.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/secretcache/logger"
	"github.com/dailyyoga/secretcache/routine"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SecretCache caches secret values fetched from a Provider.
// All methods are safe for concurrent use.
type SecretCache struct {
	// Dependencies
	log      logger.Logger
	provider Provider
	hook     Hook
	recorder Recorder

	// Configuration
	cfg Config

	// Runtime state
	store  *store
	group  singleflight.Group
	closed atomic.Bool
	now    func() time.Time
}

// fetchResult is shared by every caller waiting on the same fetch
type fetchResult struct {
	stage string
	value *SecretValue
	err   error
}

// New creates a new secret cache.
// A nil config uses DefaultConfig; zero fields take their default values.
// The configuration is copied, later changes to cfg have no effect.
func New(log logger.Logger, cfg *Config, provider Provider) (*SecretCache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.MergeDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, ErrNilProvider
	}

	sc := &SecretCache{
		log:      logger.OrNop(log),
		provider: provider,
		hook:     c.Hook,
		recorder: c.Recorder,
		cfg:      c,
		now:      time.Now,
	}
	if sc.hook == nil {
		sc.hook = NopHook{}
	}
	if sc.recorder == nil {
		sc.recorder = nopRecorder{}
	}

	st, err := newStore(sc.log, &sc.cfg, sc.recorder)
	if err != nil {
		return nil, err
	}
	sc.store = st
	return sc, nil
}

// GetSecretString returns the string payload of the secret version labelled
// versionStage ("" means the configured default stage).
// It fails with ErrTypeMismatch when the secret holds a binary payload.
func (sc *SecretCache) GetSecretString(ctx context.Context, secretID, versionStage string) (string, error) {
	v, err := sc.GetSecretValue(ctx, secretID, versionStage)
	if err != nil {
		return "", err
	}
	if v.SecretString == nil {
		return "", ErrWantString(secretID)
	}
	return *v.SecretString, nil
}

// GetSecretBinary returns the binary payload of the secret version labelled
// versionStage ("" means the configured default stage).
// It fails with ErrTypeMismatch when the secret holds a string payload.
func (sc *SecretCache) GetSecretBinary(ctx context.Context, secretID, versionStage string) ([]byte, error) {
	v, err := sc.GetSecretValue(ctx, secretID, versionStage)
	if err != nil {
		return nil, err
	}
	if !v.IsBinary() {
		return nil, ErrWantBinary(secretID)
	}
	return v.SecretBinary, nil
}

// GetSecretValue returns a copy of the cached version of secretID labelled
// versionStage, fetching it first when it is missing or stale.
//
// If a refresh fails with a transient error and a previous value exists, the
// previous value is returned. If the store reports the secret missing the
// entry is dropped and the error wraps ErrNotFound.
func (sc *SecretCache) GetSecretValue(ctx context.Context, secretID, versionStage string) (*SecretValue, error) {
	if sc.closed.Load() {
		return nil, ErrCacheClosed
	}
	if secretID == "" {
		return nil, ErrInvalidSecretID
	}
	stage := sc.resolveStage(versionStage)

	e := sc.store.getOrCreate(secretID)
	if !e.needsRefresh(sc.now(), stage) {
		sc.recorder.Hit()
		return sc.read(e, stage)
	}

	sc.recorder.Miss()
	for {
		res, err := sc.fetch(ctx, e, stage)
		if err != nil {
			return nil, err
		}
		if res.stage == stage {
			return sc.resolve(e, stage, res)
		}
		// joined a fetch of another stage; it may have brought this one too
		if e.isDeleted() {
			e = sc.store.getOrCreate(secretID)
		}
		if !e.needsRefresh(sc.now(), stage) {
			return sc.read(e, stage)
		}
	}
}

// RefreshNow fetches the default stage of secretID immediately, ignoring the
// refresh interval and any retry delay. On failure the previous value stays
// cached and the error is returned.
func (sc *SecretCache) RefreshNow(ctx context.Context, secretID string) error {
	if sc.closed.Load() {
		return ErrCacheClosed
	}
	if secretID == "" {
		return ErrInvalidSecretID
	}
	stage := sc.cfg.DefaultVersionStage

	e := sc.store.getOrCreate(secretID)
	res, err := sc.fetch(ctx, e, stage)
	for err == nil && res.stage != stage {
		res, err = sc.fetch(ctx, e, stage)
	}
	if err != nil {
		return err
	}
	if res.err != nil {
		return res.err
	}
	if res.value == nil {
		return ErrStageMissing(secretID, stage)
	}
	return nil
}

// RemoveID drops secretID from the cache. The next read fetches it again.
func (sc *SecretCache) RemoveID(secretID string) {
	if sc.store.removeID(secretID) {
		sc.notifyDelete(secretID)
		sc.log.Debug("secret removed", zap.String("secret_id", secretID))
	}
}

// Len returns the number of secret ids currently cached
func (sc *SecretCache) Len() int {
	return sc.store.len()
}

// Close drops every cached value. Fetches already in flight run to completion
// but their results are discarded; further calls return ErrCacheClosed.
func (sc *SecretCache) Close() {
	if sc.closed.CompareAndSwap(false, true) {
		sc.store.clear()
		sc.log.Info("secret cache closed")
	}
}

func (sc *SecretCache) resolveStage(stage string) string {
	if stage == "" {
		return sc.cfg.DefaultVersionStage
	}
	return stage
}

// read serves a cached value without calling the provider. With nothing
// cached for stage, the last refresh error is returned.
func (sc *SecretCache) read(e *entry, stage string) (*SecretValue, error) {
	v, lastErr := e.cached(stage)
	if v == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrStageMissing(e.id, stage)
	}
	return sc.output(v)
}

// resolve turns a shared fetch result into the answer for one caller
func (sc *SecretCache) resolve(e *entry, stage string, res *fetchResult) (*SecretValue, error) {
	switch {
	case res.err == nil && res.value == nil:
		return nil, ErrStageMissing(e.id, stage)
	case res.err == nil:
		return sc.output(res.value)
	case errors.Is(res.err, ErrNotFound):
		return nil, res.err
	}

	v, _ := e.cached(stage)
	if v == nil {
		return nil, res.err
	}
	sc.recorder.Stale()
	sc.log.Warn("serving stale secret after failed refresh",
		zap.String("secret_id", e.id),
		zap.String("version_stage", stage),
		zap.String("version_id", v.VersionID),
		zap.Error(res.err),
	)
	return sc.output(v)
}

// output converts a stored value into the copy handed to a caller
func (sc *SecretCache) output(stored *SecretValue) (*SecretValue, error) {
	v, err := sc.hook.Get(stored.Clone())
	if err != nil {
		return nil, err
	}
	return v, nil
}

// fetch runs at most one provider call per secret id at a time, whatever
// the stage. Callers arriving while a call is in flight wait for its result,
// which carries the stage it fetched; a caller wanting another stage checks
// the entry again and fetches on its own afterwards. The call itself is
// detached from ctx: a caller that gives up returns ctx.Err() and the fetch
// still completes and updates the entry.
func (sc *SecretCache) fetch(ctx context.Context, e *entry, stage string) (*fetchResult, error) {
	fetchCtx := context.WithoutCancel(ctx)

	ch := sc.group.DoChan(e.id, func() (any, error) {
		var res *fetchResult
		err := routine.Call(sc.log, "refresh:"+e.id, func() error {
			res = sc.refresh(fetchCtx, e, stage)
			return nil
		})
		if err != nil {
			res = &fetchResult{stage: stage, err: err}
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			sc.log.Debug("joined in-flight fetch",
				zap.String("secret_id", e.id),
				zap.String("version_stage", stage),
			)
		}
		return r.Val.(*fetchResult), nil
	}
}

// refresh performs one provider call and applies its outcome to e.
// The returned value is in stored form (after Hook.Put).
func (sc *SecretCache) refresh(ctx context.Context, e *entry, stage string) *fetchResult {
	ctx, cancel := context.WithTimeout(ctx, sc.cfg.FetchTimeout)
	defer cancel()

	var value *SecretValue
	start := sc.now()
	err := routine.Call(sc.log, "fetch:"+e.id, func() error {
		sc.hook.BeforeFetch(e.id, stage)
		v, err := sc.provider.FetchSecretValue(ctx, e.id, stage)
		if err == nil && v == nil {
			err = ErrSecretNotFound(e.id, stage)
		}
		sc.hook.AfterFetch(e.id, stage, err)
		if err != nil {
			return err
		}

		v = v.Clone()
		if len(v.VersionStages) == 0 {
			v.VersionStages = []string{stage}
		}
		stored, err := sc.hook.Put(v)
		if err != nil {
			return err
		}
		value = stored
		return nil
	})
	now := sc.now()
	sc.recorder.Fetch(err, now.Sub(start))

	if errors.Is(err, ErrNotFound) {
		e.markDeleted()
		if sc.store.remove(e.id, e) {
			sc.notifyDelete(e.id)
		}
		sc.log.Info("secret not found, dropped from cache",
			zap.String("secret_id", e.id),
			zap.String("version_stage", stage),
		)
		return &fetchResult{stage: stage, err: err}
	}

	delay := e.applyFetchResult(value, err, now)
	if err != nil {
		sc.log.Warn("secret refresh failed",
			zap.String("secret_id", e.id),
			zap.String("version_stage", stage),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		return &fetchResult{stage: stage, err: err}
	}

	_, next := e.schedule()
	sc.log.Debug("secret refreshed",
		zap.String("secret_id", e.id),
		zap.String("version_stage", stage),
		zap.String("version_id", value.VersionID),
		zap.Time("next_refresh", next),
	)
	if !value.HasStage(stage) {
		return &fetchResult{stage: stage}
	}
	return &fetchResult{stage: stage, value: value}
}

// notifyDelete runs Hook.OnDelete; a panicking hook is logged and ignored
func (sc *SecretCache) notifyDelete(secretID string) {
	_ = routine.Call(sc.log, "on_delete:"+secretID, func() error {
		sc.hook.OnDelete(secretID)
		return nil
	})
}
