package actuatorx

import "fmt"

// NumMotors is the number of actuators on an X-quad.
const NumMotors = 4

// MotorIndex identifies one physical motor position. The binding between an
// index, its corner of the frame and its spin direction never changes.
type MotorIndex int

const (
	FrontLeft MotorIndex = iota
	FrontRight
	RearRight
	RearLeft
)

// AllMotors is the fixed iteration order used by every per-tick pass.
var AllMotors = [NumMotors]MotorIndex{FrontLeft, FrontRight, RearRight, RearLeft}

// Valid reports whether m is one of the four known motors.
func (m MotorIndex) Valid() bool {
	return m >= FrontLeft && m <= RearLeft
}

// WireID is the channel number written to the ESC bridge.
func (m MotorIndex) WireID() int {
	return int(m)
}

func (m MotorIndex) String() string {
	switch m {
	case FrontLeft:
		return "front-left"
	case FrontRight:
		return "front-right"
	case RearRight:
		return "rear-right"
	case RearLeft:
		return "rear-left"
	default:
		return fmt.Sprintf("motor(%d)", int(m))
	}
}

// CommandVector is the wrench requested by the upstream controller for one
// tick: collective thrust (N) and pitch, roll, yaw moments (N·m).
type CommandVector struct {
	Thrust float64 `json:"thrust" yaml:"thrust"`
	Pitch  float64 `json:"pitch" yaml:"pitch"`
	Roll   float64 `json:"roll" yaml:"roll"`
	Yaw    float64 `json:"yaw" yaml:"yaw"`
}

// CommandBounds limits each component of an incoming command vector.
// A zero-valued range (Min == Max == 0) leaves that component untouched.
type CommandBounds struct {
	Thrust Range `json:"thrust" yaml:"thrust"`
	Pitch  Range `json:"pitch" yaml:"pitch"`
	Roll   Range `json:"roll" yaml:"roll"`
	Yaw    Range `json:"yaw" yaml:"yaw"`
}

// Range is a closed interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) clamp(v float64) float64 {
	if r.Min == 0 && r.Max == 0 {
		return v
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Clamp returns c with every component limited to its bound.
func (b CommandBounds) Clamp(c CommandVector) CommandVector {
	return CommandVector{
		Thrust: b.Thrust.clamp(c.Thrust),
		Pitch:  b.Pitch.clamp(c.Pitch),
		Roll:   b.Roll.clamp(c.Roll),
		Yaw:    b.Yaw.clamp(c.Yaw),
	}
}

// MotorState is the last realized output of one motor.
type MotorState struct {
	Speed float64 `json:"speed" yaml:"speed"` // rad/s, never negative
	PWM   int     `json:"pwm" yaml:"pwm"`     // µs
}

// CommandSource supplies the most recent command without blocking.
// The bool result is true only when the value is newer than the previous read.
type CommandSource interface {
	Latest() (CommandVector, bool)
}
