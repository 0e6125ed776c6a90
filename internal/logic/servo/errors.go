package servo

import "fmt"

// ConfigurationError reports an invalid axis index, calibration or target.
// It is always raised before any device I/O.
type ConfigurationError struct {
	Axis   int
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("axis %d: invalid %s: %s", e.Axis, e.Field, e.Reason)
}
