package cache

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrNotFound is returned when the remote store reports that a secret, or
	// the requested version stage of it, does not exist. Providers wrap it.
	ErrNotFound = fmt.Errorf("cache: secret not found")
	// ErrStageNotFound is returned when a fetch succeeded but the result does
	// not carry the requested version stage
	ErrStageNotFound = fmt.Errorf("cache: version stage not found")
	// ErrTypeMismatch is returned when the cached payload is binary and a string
	// was requested, or the other way around
	ErrTypeMismatch = fmt.Errorf("cache: secret payload type mismatch")
	// ErrInvalidSecretID is returned for an empty secret id
	ErrInvalidSecretID = fmt.Errorf("cache: invalid secret id")
	// ErrCacheClosed is returned when operations are attempted on a closed cache
	ErrCacheClosed = fmt.Errorf("cache: cache is closed")
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("cache: invalid config")
	// ErrNilProvider is returned by New without a provider
	ErrNilProvider = fmt.Errorf("cache: provider is required")
)

// Error constructors

// ErrSecretNotFound wraps ErrNotFound with the secret id and stage
func ErrSecretNotFound(secretID, versionStage string) error {
	return fmt.Errorf("%w: %s (stage %s)", ErrNotFound, secretID, versionStage)
}

// ErrStageMissing wraps ErrStageNotFound with the secret id and stage
func ErrStageMissing(secretID, versionStage string) error {
	return fmt.Errorf("%w: %s has no version labelled %s", ErrStageNotFound, secretID, versionStage)
}

// ErrWantString reports a binary payload read as a string
func ErrWantString(secretID string) error {
	return fmt.Errorf("%w: %s holds a binary payload, not a string", ErrTypeMismatch, secretID)
}

// ErrWantBinary reports a string payload read as binary
func ErrWantBinary(secretID string) error {
	return fmt.Errorf("%w: %s holds a string payload, not binary", ErrTypeMismatch, secretID)
}

// ErrInvalidMaxCacheSize returns an error for an invalid max cache size
func ErrInvalidMaxCacheSize(size int) error {
	return fmt.Errorf("%w: max cache size %d (must be > 0)", ErrInvalidConfig, size)
}

// ErrInvalidRetryDelay returns an error for a negative retry delay setting
func ErrInvalidRetryDelay(name string, d time.Duration) error {
	return fmt.Errorf("%w: %s %v (must be >= 0)", ErrInvalidConfig, name, d)
}

// ErrInvalidGrowthFactor returns an error for a negative or NaN growth factor
func ErrInvalidGrowthFactor(f float64) error {
	return fmt.Errorf("%w: retry growth factor %v (must be >= 0)", ErrInvalidConfig, f)
}

// ErrInvalidRefreshInterval returns an error for an invalid refresh interval
func ErrInvalidRefreshInterval(d time.Duration) error {
	return fmt.Errorf("%w: secret refresh interval %v (must be > 0)", ErrInvalidConfig, d)
}

// ErrInvalidFetchTimeout returns an error for an invalid fetch timeout
func ErrInvalidFetchTimeout(d time.Duration) error {
	return fmt.Errorf("%w: fetch timeout %v (must be > 0)", ErrInvalidConfig, d)
}

// ErrInvalidVersionStage returns an error for an empty default version stage
func ErrInvalidVersionStage(stage string) error {
	return fmt.Errorf("%w: default version stage %q (must be non-empty)", ErrInvalidConfig, stage)
}

// ErrLoadConfig wraps a failure to decode the cache section of a viper config
func ErrLoadConfig(key string, err error) error {
	return fmt.Errorf("%w: decode %q: %v", ErrInvalidConfig, key, err)
}
