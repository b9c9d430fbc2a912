package routine

import "fmt"

// ErrPanicRecovered is wrapped by every error produced from a recovered panic
var ErrPanicRecovered = fmt.Errorf("routine: panic recovered")

// ErrPanic returns an error wrapping ErrPanicRecovered with the recovered value
func ErrPanic(recovered any) error {
	return fmt.Errorf("%w: %v", ErrPanicRecovered, recovered)
}
