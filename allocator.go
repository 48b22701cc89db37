package actuatorx

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Geometry holds the mechanical coefficients of the frame.
type Geometry struct {
	ThrustFactor float64 `json:"thrustFactor" yaml:"thrustFactor"` // kT, N per (rad/s)²
	DragFactor   float64 `json:"dragFactor" yaml:"dragFactor"`     // kD, N·m per (rad/s)²
	ArmLength    float64 `json:"armLength" yaml:"armLength"`       // centre to motor, m
}

// DefaultGeometry is the reference airframe.
func DefaultGeometry() Geometry {
	return Geometry{
		ThrustFactor: 0.0000542,
		DragFactor:   0.0000011,
		ArmLength:    0.24,
	}
}

// Validate checks that every coefficient is finite and strictly positive.
func (g Geometry) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"thrust factor", g.ThrustFactor},
		{"drag factor", g.DragFactor},
		{"arm length", g.ArmLength},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("geometry: %s must be positive and finite, got %v", f.name, f.v)
		}
	}
	return nil
}

// motorSigns is the sign pattern of one motor in the X layout.
// pitch: +1 front, -1 rear. roll: +1 left, -1 right. yaw: +1 clockwise prop.
type motorSigns struct {
	pitch, roll, yaw float64
}

var xLayout = [NumMotors]motorSigns{
	FrontLeft:  {pitch: +1, roll: +1, yaw: +1},
	FrontRight: {pitch: +1, roll: -1, yaw: -1},
	RearRight:  {pitch: -1, roll: -1, yaw: +1},
	RearLeft:   {pitch: -1, roll: +1, yaw: -1},
}

// Allocator maps a command vector to the raw squared speed each motor must
// turn at. Results are not clamped; out-of-envelope values are expected.
type Allocator struct {
	geometry Geometry
	rows     [NumMotors][4]float64 // coefficients for thrust, pitch, roll, yaw
}

// NewAllocator builds the allocation matrix for g and verifies that it is the
// exact inverse of the forward mixing matrix.
func NewAllocator(g Geometry) (*Allocator, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	arm := g.ArmLength / math.Sqrt2
	forward := mat.NewDense(4, NumMotors, nil)
	alloc := mat.NewDense(NumMotors, 4, nil)
	for _, m := range AllMotors {
		s := xLayout[m]
		forward.Set(0, int(m), g.ThrustFactor)
		forward.Set(1, int(m), g.ThrustFactor*arm*s.pitch)
		forward.Set(2, int(m), g.ThrustFactor*arm*s.roll)
		forward.Set(3, int(m), g.DragFactor*s.yaw)

		alloc.SetRow(int(m), []float64{
			1 / (4 * g.ThrustFactor),
			s.pitch / (4 * g.ThrustFactor * arm),
			s.roll / (4 * g.ThrustFactor * arm),
			s.yaw / (4 * g.DragFactor),
		})
	}

	if mat.Det(forward) == 0 {
		return nil, errors.New("allocator: mixing matrix is singular")
	}
	var prod mat.Dense
	prod.Mul(forward, alloc)
	identity := mat.NewDiagDense(4, []float64{1, 1, 1, 1})
	if !mat.EqualApprox(&prod, identity, 1e-9) {
		return nil, errors.New("allocator: allocation matrix does not invert mixing matrix")
	}

	a := &Allocator{geometry: g}
	for _, m := range AllMotors {
		copy(a.rows[m][:], alloc.RawRowView(int(m)))
	}
	return a, nil
}

// Geometry returns the coefficients the allocator was built with.
func (a *Allocator) Geometry() Geometry {
	return a.geometry
}

// RawSquaredSpeed returns ω² for motor m under command c.
// Finite input always yields a finite result; overflow saturates.
func (a *Allocator) RawSquaredSpeed(c CommandVector, m MotorIndex) float64 {
	r := a.rows[m]
	return saturate(r[0]*c.Thrust) + saturate(r[1]*c.Pitch) +
		saturate(r[2]*c.Roll) + saturate(r[3]*c.Yaw)
}

// termLimit keeps the sum of four terms representable.
const termLimit = math.MaxFloat64 / 4

func saturate(v float64) float64 {
	if v > termLimit {
		return termLimit
	}
	if v < -termLimit {
		return -termLimit
	}
	return v
}

// Allocate runs RawSquaredSpeed for every motor.
func (a *Allocator) Allocate(c CommandVector) [NumMotors]float64 {
	var out [NumMotors]float64
	for _, m := range AllMotors {
		out[m] = a.RawSquaredSpeed(c, m)
	}
	return out
}

// Mix is the forward model: the wrench produced by the given squared speeds.
func (a *Allocator) Mix(squared [NumMotors]float64) CommandVector {
	g := a.geometry
	arm := g.ArmLength / math.Sqrt2
	var c CommandVector
	for _, m := range AllMotors {
		s := xLayout[m]
		c.Thrust += g.ThrustFactor * squared[m]
		c.Pitch += g.ThrustFactor * arm * s.pitch * squared[m]
		c.Roll += g.ThrustFactor * arm * s.roll * squared[m]
		c.Yaw += g.DragFactor * s.yaw * squared[m]
	}
	return c
}
