package actuatorx

import (
	"fmt"
	"math"
	"strings"
)

// Polarity selects whether pulse width grows or shrinks with speed.
type Polarity int

const (
	Increasing Polarity = iota
	Decreasing
)

func (p Polarity) String() string {
	if p == Decreasing {
		return "decreasing"
	}
	return "increasing"
}

// ParsePolarity accepts "increasing" or "decreasing"; empty means increasing.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "increasing":
		return Increasing, nil
	case "decreasing":
		return Decreasing, nil
	default:
		return Increasing, fmt.Errorf("unknown pwm polarity %q", s)
	}
}

// PwmEncoder maps a bounded speed onto an ESC pulse width.
type PwmEncoder struct {
	maxSpeed float64
	minPWM   float64
	maxPWM   float64
	polarity Polarity
}

// NewPwmEncoder builds the linear map and checks once that it is monotonic in
// the chosen direction and hits both ends of the pulse range.
func NewPwmEncoder(limits SafetyLimits, polarity Polarity) (*PwmEncoder, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if polarity != Increasing && polarity != Decreasing {
		return nil, fmt.Errorf("encoder: invalid polarity %d", polarity)
	}
	e := &PwmEncoder{
		maxSpeed: limits.MaxSpeed,
		minPWM:   float64(limits.MinPWM),
		maxPWM:   float64(limits.MaxPWM),
		polarity: polarity,
	}

	lo, mid, hi := e.Encode(0), e.Encode(limits.MaxSpeed/2), e.Encode(limits.MaxSpeed)
	if polarity == Decreasing {
		lo, hi = hi, lo
	}
	if lo != limits.MinPWM || hi != limits.MaxPWM || mid < lo || mid > hi {
		return nil, fmt.Errorf("encoder: %s map is not monotonic over [%d, %d]", polarity, limits.MinPWM, limits.MaxPWM)
	}
	return e, nil
}

// Polarity returns the configured direction.
func (e *PwmEncoder) Polarity() Polarity {
	return e.polarity
}

// Encode returns the pulse width in µs for speed, clamping out-of-range input.
func (e *PwmEncoder) Encode(speed float64) int {
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	if speed > e.maxSpeed {
		speed = e.maxSpeed
	}
	frac := speed / e.maxSpeed
	if e.polarity == Decreasing {
		frac = 1 - frac
	}
	return int(math.Round(e.minPWM + frac*(e.maxPWM-e.minPWM)))
}
