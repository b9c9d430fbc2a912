package cache

// Hook receives lifecycle callbacks from the cache. A typical use is keeping
// payloads encrypted in memory: Put encrypts before a value is stored and Get
// decrypts it for each reader.
//
// Callbacks run on the goroutine performing the fetch and must be safe for
// concurrent use across secret ids.
type Hook interface {
	// Put transforms a freshly fetched value into the form kept in the cache.
	// An error fails the refresh like a provider error.
	Put(value *SecretValue) (*SecretValue, error)
	// Get turns a cached value back into the form returned to callers.
	Get(cached *SecretValue) (*SecretValue, error)
	// BeforeFetch is called before every provider call.
	BeforeFetch(secretID, versionStage string)
	// AfterFetch is called after every provider call with its error, if any.
	AfterFetch(secretID, versionStage string, err error)
	// OnDelete is called when a secret leaves the cache because the store
	// reported it missing or RemoveID was called.
	OnDelete(secretID string)
}

// NopHook passes values through unchanged and ignores every callback.
// Embed it to implement only the callbacks you need.
type NopHook struct{}

var _ Hook = NopHook{}

func (NopHook) Put(value *SecretValue) (*SecretValue, error) { return value, nil }

func (NopHook) Get(cached *SecretValue) (*SecretValue, error) { return cached, nil }

func (NopHook) BeforeFetch(string, string) {}

func (NopHook) AfterFetch(string, string, error) {}

func (NopHook) OnDelete(string) {}
