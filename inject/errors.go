package inject

import "fmt"

var (
	// ErrInvalidJSON is returned when a secret expected to hold JSON does not
	ErrInvalidJSON = fmt.Errorf("inject: cached secret is not valid JSON")
	// ErrMissingKey is returned when a JSON secret lacks a requested key
	ErrMissingKey = fmt.Errorf("inject: cached secret does not contain key")
)

// ErrDecode wraps a JSON decode failure for secretID. The decoder error is
// not wrapped since it may quote parts of the payload.
func ErrDecode(secretID string) error {
	return fmt.Errorf("%w: %s", ErrInvalidJSON, secretID)
}

// ErrKey reports a key missing from the JSON secret secretID
func ErrKey(secretID, key string) error {
	return fmt.Errorf("%w %q: %s", ErrMissingKey, key, secretID)
}
