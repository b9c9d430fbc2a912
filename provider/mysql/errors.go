package mysql

import "fmt"

var (
	// ErrNilDB is returned by NewWithDB without a database handle
	ErrNilDB = fmt.Errorf("mysql: database handle is required")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("mysql: invalid config: %s", msg)
}

// ErrConnection database connection error
func ErrConnection(err error) error {
	return fmt.Errorf("mysql: connection failed: %w", err)
}

// ErrQuery wraps a failed secret version lookup
func ErrQuery(secretID string, err error) error {
	return fmt.Errorf("mysql: query secret %s: %w", secretID, err)
}

// ErrMigrate wraps a failed schema migration
func ErrMigrate(err error) error {
	return fmt.Errorf("mysql: migrate: %w", err)
}
