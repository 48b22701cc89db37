package actuatorx

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SafetyLimits are the static physical limits of the motors and ESCs.
type SafetyLimits struct {
	MaxSpeed        float64 `json:"maxSpeed" yaml:"maxSpeed"`               // rad/s
	MaxAcceleration float64 `json:"maxAcceleration" yaml:"maxAcceleration"` // rad/s²
	MinPWM          int     `json:"minPwm" yaml:"minPwm"`                   // µs
	MaxPWM          int     `json:"maxPwm" yaml:"maxPwm"`                   // µs
	IdlePWM         int     `json:"idlePwm" yaml:"idlePwm"`                 // µs
}

// DefaultSafetyLimits are the limits of the reference motors: top speed keeps
// total acceleration under g/2, and one 5 ms tick may change at most 10 % of it.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxSpeed:        368.44,
		MaxAcceleration: 7369,
		MinPWM:          1000,
		MaxPWM:          2500,
		IdlePWM:         1000,
	}
}

// Validate rejects limits that cannot describe a real motor.
func (l SafetyLimits) Validate() error {
	if math.IsNaN(l.MaxSpeed) || math.IsInf(l.MaxSpeed, 0) || l.MaxSpeed <= 0 {
		return fmt.Errorf("limits: max speed must be positive, got %v", l.MaxSpeed)
	}
	if math.IsNaN(l.MaxAcceleration) || math.IsInf(l.MaxAcceleration, 0) || l.MaxAcceleration <= 0 {
		return fmt.Errorf("limits: max acceleration must be positive, got %v", l.MaxAcceleration)
	}
	if l.MinPWM <= 0 || l.MaxPWM <= l.MinPWM {
		return fmt.Errorf("limits: pwm range [%d, %d] is empty", l.MinPWM, l.MaxPWM)
	}
	if l.IdlePWM < l.MinPWM || l.IdlePWM > l.MaxPWM {
		return fmt.Errorf("limits: idle pwm %d outside [%d, %d]", l.IdlePWM, l.MinPWM, l.MaxPWM)
	}
	return nil
}

// FaultKind classifies a recoverable per-tick condition.
type FaultKind int

const (
	SpeedBelowRange FaultKind = iota + 1
	SpeedAboveRange
	AccelerationAboveRange
	AccelerationBelowRange
	PartialWriteFailure
	FullWriteFailure
)

func (k FaultKind) String() string {
	switch k {
	case SpeedBelowRange:
		return "speed_below_range"
	case SpeedAboveRange:
		return "speed_above_range"
	case AccelerationAboveRange:
		return "acceleration_above_range"
	case AccelerationBelowRange:
		return "acceleration_below_range"
	case PartialWriteFailure:
		return "partial_write_failure"
	case FullWriteFailure:
		return "full_write_failure"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault records a limit violation and the value sent in its place.
// For write failures Requested and Substituted carry the pulse width that
// could not be delivered.
type Fault struct {
	Motor       MotorIndex `json:"motor" yaml:"motor"`
	Kind        FaultKind  `json:"kind" yaml:"kind"`
	Requested   float64    `json:"requested" yaml:"requested"`
	Substituted float64    `json:"substituted" yaml:"substituted"`
}

func (f Fault) String() string {
	return fmt.Sprintf("%s %s: requested %g, sent %g", f.Motor, f.Kind, f.Requested, f.Substituted)
}

// SafetyEnvelope clamps speed and rate of change to SafetyLimits.
// It holds no per-motor state; the caller supplies the previous speed.
type SafetyEnvelope struct {
	limits   SafetyLimits
	tick     time.Duration
	maxDelta float64
}

// NewSafetyEnvelope validates limits for a loop running at the given tick.
func NewSafetyEnvelope(limits SafetyLimits, tick time.Duration) (*SafetyEnvelope, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if tick <= 0 {
		return nil, errors.New("limits: tick period must be positive")
	}
	return &SafetyEnvelope{
		limits:   limits,
		tick:     tick,
		maxDelta: limits.MaxAcceleration * tick.Seconds(),
	}, nil
}

// Limits returns the configured limits.
func (e *SafetyEnvelope) Limits() SafetyLimits {
	return e.limits
}

// MaxDelta is the largest speed change allowed within one tick.
func (e *SafetyEnvelope) MaxDelta() float64 {
	return e.maxDelta
}

// CheckSpeed converts a raw squared speed into a target speed in [0, MaxSpeed].
func (e *SafetyEnvelope) CheckSpeed(m MotorIndex, raw float64) (float64, Fault, bool) {
	if math.IsNaN(raw) || raw < 0 {
		return 0, Fault{Motor: m, Kind: SpeedBelowRange, Requested: raw, Substituted: 0}, true
	}
	speed := math.Sqrt(raw)
	if speed > e.limits.MaxSpeed {
		return e.limits.MaxSpeed, Fault{Motor: m, Kind: SpeedAboveRange, Requested: speed, Substituted: e.limits.MaxSpeed}, true
	}
	return speed, Fault{}, false
}

// CheckAcceleration rate-limits the step from previous to target.
// The limited step keeps the requested direction.
func (e *SafetyEnvelope) CheckAcceleration(m MotorIndex, target, previous float64) (float64, Fault, bool) {
	rate := (target - previous) / e.tick.Seconds()
	switch {
	case rate > e.limits.MaxAcceleration:
		next := math.Min(previous+e.maxDelta, e.limits.MaxSpeed)
		return next, Fault{Motor: m, Kind: AccelerationAboveRange, Requested: target, Substituted: next}, true
	case rate < -e.limits.MaxAcceleration:
		next := math.Max(previous-e.maxDelta, 0)
		return next, Fault{Motor: m, Kind: AccelerationBelowRange, Requested: target, Substituted: next}, true
	}
	return target, Fault{}, false
}

// Apply runs the speed check then the acceleration check and appends any
// faults to dst. The realized speed is always inside the envelope.
func (e *SafetyEnvelope) Apply(dst []Fault, m MotorIndex, raw, previous float64) (float64, []Fault) {
	target, f, bad := e.CheckSpeed(m, raw)
	if bad {
		dst = append(dst, f)
	}
	speed, f, bad := e.CheckAcceleration(m, target, previous)
	if bad {
		dst = append(dst, f)
	}
	return speed, dst
}
