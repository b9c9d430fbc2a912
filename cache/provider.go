package cache

import (
	"context"
	"time"
)

// Provider fetches secret values from the remote store.
//
// FetchSecretValue returns the version currently labelled versionStage. When
// the secret or the stage does not exist it must return an error wrapping
// ErrNotFound; every other error is treated as transient and retried with
// backoff.
type Provider interface {
	FetchSecretValue(ctx context.Context, secretID, versionStage string) (*SecretValue, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, secretID, versionStage string) (*SecretValue, error)

// FetchSecretValue calls f
func (f ProviderFunc) FetchSecretValue(ctx context.Context, secretID, versionStage string) (*SecretValue, error) {
	return f(ctx, secretID, versionStage)
}

// Recorder receives cache events for metrics. The metrics package provides a
// Prometheus implementation.
type Recorder interface {
	// Hit is called when a read is served without a provider call
	Hit()
	// Miss is called when a read needs a provider call
	Miss()
	// Fetch is called after every provider call
	Fetch(err error, elapsed time.Duration)
	// Stale is called when a stale value is served after a failed refresh
	Stale()
	// Eviction is called when an entry is evicted to respect MaxCacheSize
	Eviction()
}

type nopRecorder struct{}

func (nopRecorder) Hit() {}
func (nopRecorder) Miss() {}
func (nopRecorder) Fetch(error, time.Duration) {}
func (nopRecorder) Stale() {}
func (nopRecorder) Eviction() {}
