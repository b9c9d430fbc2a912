package cron

import (
	"time"

	"github.com/dailyyoga/secretcache/logger"
)

// warmupChain is the chain name used by NewWarmer
const warmupChain = "secret-warmup"

// WarmerConfig is the configuration of a secret warm-up job
type WarmerConfig struct {
	// Spec is the cron spec of the job (seconds field first, or a descriptor)
	// default: "@every 5m"
	Spec string `mapstructure:"spec"`
	// SecretIDs are the secrets kept warm
	SecretIDs []string `mapstructure:"secret_ids"`
	// Concurrency bounds parallel refreshes
	// default: 4
	Concurrency int `mapstructure:"concurrency"`
	// Timeout bounds one run of the job
	// default: 1m
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultWarmerConfig returns the default warm-up configuration
func DefaultWarmerConfig() *WarmerConfig {
	return &WarmerConfig{
		Spec:        "@every 5m",
		Concurrency: defaultConcurrency,
		Timeout:     time.Minute,
	}
}

// MergeDefaults fills zero fields with their defaults
func (c *WarmerConfig) MergeDefaults() *WarmerConfig {
	defaults := DefaultWarmerConfig()
	if c.Spec == "" {
		c.Spec = defaults.Spec
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

// Validate validates the warm-up configuration
func (c *WarmerConfig) Validate() error {
	if len(c.SecretIDs) == 0 {
		return ErrNoSecrets
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency(c.Concurrency)
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout(c.Timeout)
	}
	return nil
}

// NewWarmer returns a Cron with a single chain refreshing cfg.SecretIDs
// through r on cfg.Spec. The scheduler is not started.
func NewWarmer(log logger.Logger, r Refresher, cfg *WarmerConfig) (Cron, error) {
	if cfg == nil {
		return nil, ErrNoSecrets
	}
	c := *cfg
	c.MergeDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	task, err := NewRefreshTask(log, "refresh", r, c.SecretIDs, c.Concurrency)
	if err != nil {
		return nil, err
	}

	cr := NewCron(log, TimeoutMiddleware(c.Timeout))
	if err := cr.AddTasks(warmupChain, c.Spec, task); err != nil {
		cr.Close()
		return nil, err
	}
	return cr, nil
}
