package trajectory

import (
	"fmt"
	"math"
	"strings"
)

// Easing selects the velocity profile of a path. The set is closed: every
// variant is listed in Easings.
type Easing int

const (
	Linear Easing = iota
	Log
	ExponentialDecay
	SineSquared
)

// Easings returns every supported easing.
func Easings() []Easing {
	return []Easing{Linear, Log, ExponentialDecay, SineSquared}
}

// Ease maps progress to a velocity-shaping factor. It is pure.
// Log is undefined for p <= 0 and returns -Inf or NaN there.
func (e Easing) Ease(p float64) float64 {
	switch e {
	case Linear:
		return p
	case Log:
		return math.Log(p)
	case ExponentialDecay:
		return 1 - math.Exp(-(2*p)*(2*p))
	case SineSquared:
		s := math.Sin(8 * p / 5)
		return s * s
	default:
		return math.NaN()
	}
}

func (e Easing) String() string {
	switch e {
	case Linear:
		return "linear"
	case Log:
		return "log"
	case ExponentialDecay:
		return "exponential_decay"
	case SineSquared:
		return "sine_squared"
	default:
		return fmt.Sprintf("easing(%d)", int(e))
	}
}

// ParseEasing maps a configuration name to an Easing.
func ParseEasing(name string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear, nil
	case "log", "log_ease":
		return Log, nil
	case "exponential_decay", "exp", "exponential":
		return ExponentialDecay, nil
	case "sine_squared", "sine", "gentle":
		return SineSquared, nil
	default:
		return Linear, fmt.Errorf("unknown easing %q", name)
	}
}

// UnmarshalText lets easings be decoded straight from config files.
func (e *Easing) UnmarshalText(text []byte) error {
	v, err := ParseEasing(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (e Easing) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}
