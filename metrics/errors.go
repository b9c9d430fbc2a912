package metrics

import "fmt"

// ErrRegister wraps a failure to register a collector
func ErrRegister(name string, err error) error {
	return fmt.Errorf("metrics: register %s: %w", name, err)
}
