package cache

import (
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultVersionStage is the version stage requested when callers pass ""
const DefaultVersionStage = "AWSCURRENT"

// Config holds configuration for SecretCache.
// Zero values are replaced by defaults in New; negative values are rejected.
type Config struct {
	// MaxCacheSize is the maximum number of secret ids kept in the cache
	// default: 1024
	MaxCacheSize int `mapstructure:"max_cache_size"`
	// ExceptionRetryDelayBase is the delay after the first failed refresh
	// default: 1 * time.Second
	// Zero selects the default; backoff cannot be disabled, use a small
	// positive delay such as time.Millisecond instead
	ExceptionRetryDelayBase time.Duration `mapstructure:"exception_retry_delay_base"`
	// ExceptionRetryGrowthFactor multiplies the delay after each further failure
	// default: 2
	// Zero selects the default; use 1 for a constant delay
	ExceptionRetryGrowthFactor float64 `mapstructure:"exception_retry_growth_factor"`
	// ExceptionRetryDelayMax caps the delay between failed refreshes
	// default: 1 * time.Hour
	ExceptionRetryDelayMax time.Duration `mapstructure:"exception_retry_delay_max"`
	// DefaultVersionStage is used when a caller does not name a stage
	// default: "AWSCURRENT"
	DefaultVersionStage string `mapstructure:"default_version_stage"`
	// SecretRefreshInterval is how long a fetched value is served before it is refreshed
	// default: 1 * time.Hour
	SecretRefreshInterval time.Duration `mapstructure:"secret_refresh_interval"`
	// FetchTimeout bounds a single provider call, independent of caller deadlines
	// default: 30 * time.Second
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// Hook receives lifecycle callbacks; nil means NopHook
	Hook Hook `mapstructure:"-"`
	// Recorder receives cache metrics; nil disables them
	Recorder Recorder `mapstructure:"-"`
}

// DefaultConfig returns the default configuration for SecretCache
func DefaultConfig() *Config {
	return &Config{
		MaxCacheSize:               1024,
		ExceptionRetryDelayBase:    1 * time.Second,
		ExceptionRetryGrowthFactor: 2,
		ExceptionRetryDelayMax:     1 * time.Hour,
		DefaultVersionStage:        DefaultVersionStage,
		SecretRefreshInterval:      1 * time.Hour,
		FetchTimeout:               30 * time.Second,
	}
}

// MergeDefaults fills zero fields with their default values and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = defaults.MaxCacheSize
	}
	if c.ExceptionRetryDelayBase == 0 {
		c.ExceptionRetryDelayBase = defaults.ExceptionRetryDelayBase
	}
	if c.ExceptionRetryGrowthFactor == 0 {
		c.ExceptionRetryGrowthFactor = defaults.ExceptionRetryGrowthFactor
	}
	if c.ExceptionRetryDelayMax == 0 {
		c.ExceptionRetryDelayMax = defaults.ExceptionRetryDelayMax
	}
	if c.DefaultVersionStage == "" {
		c.DefaultVersionStage = defaults.DefaultVersionStage
	}
	if c.SecretRefreshInterval == 0 {
		c.SecretRefreshInterval = defaults.SecretRefreshInterval
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxCacheSize <= 0 {
		return ErrInvalidMaxCacheSize(c.MaxCacheSize)
	}
	if c.ExceptionRetryDelayBase < 0 {
		return ErrInvalidRetryDelay("retry delay base", c.ExceptionRetryDelayBase)
	}
	if c.ExceptionRetryGrowthFactor < 0 || math.IsNaN(c.ExceptionRetryGrowthFactor) {
		return ErrInvalidGrowthFactor(c.ExceptionRetryGrowthFactor)
	}
	if c.ExceptionRetryDelayMax < 0 {
		return ErrInvalidRetryDelay("retry delay max", c.ExceptionRetryDelayMax)
	}
	if c.DefaultVersionStage == "" {
		return ErrInvalidVersionStage(c.DefaultVersionStage)
	}
	if c.SecretRefreshInterval <= 0 {
		return ErrInvalidRefreshInterval(c.SecretRefreshInterval)
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidFetchTimeout(c.FetchTimeout)
	}
	return nil
}

// LoadConfig decodes the section under key (the whole config when key is "")
// on top of DefaultConfig and validates the result. Durations are written as
// Go duration strings ("30m", "1h") or as plain numbers of seconds (90, 0.5).
func LoadConfig(v *viper.Viper, key string) (*Config, error) {
	cfg := DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	var err error
	if key == "" {
		err = v.Unmarshal(cfg, hook)
	} else {
		err = v.UnmarshalKey(key, cfg, hook)
	}
	if err != nil {
		return nil, ErrLoadConfig(key, err)
	}
	if err := cfg.MergeDefaults().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook decodes plain numbers into time.Duration fields as
// seconds. Values that already are durations pass through unchanged.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}
