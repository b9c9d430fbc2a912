package awssm

import "fmt"

var (
	// ErrEmptySecret is returned when a version carries neither a string nor a
	// binary payload
	ErrEmptySecret = fmt.Errorf("awssm: secret version has no payload")
	// ErrNilClient is returned by New without an API client
	ErrNilClient = fmt.Errorf("awssm: api client is required")
)

// ErrLoadAWSConfig wraps a failure to load the AWS SDK configuration
func ErrLoadAWSConfig(err error) error {
	return fmt.Errorf("awssm: load aws config: %w", err)
}

// ErrGetSecretValue wraps a transient GetSecretValue failure
func ErrGetSecretValue(secretID string, err error) error {
	return fmt.Errorf("awssm: get secret value %s: %w", secretID, err)
}
