// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/actuatorx"
	"github.com/comalice/actuatorx/realtime"
)

// Pipeline is the per-tick computation without the loop around it.
type Pipeline struct {
	Alloc *actuatorx.Allocator
	Env   *actuatorx.SafetyEnvelope
	Enc   *actuatorx.PwmEncoder

	motors [actuatorx.NumMotors]actuatorx.MotorState
	faults []actuatorx.Fault
}

// NewPipeline builds the reference airframe pipeline at the given tick.
func NewPipeline(tick time.Duration) *Pipeline {
	alloc, err := actuatorx.NewAllocator(actuatorx.DefaultGeometry())
	if err != nil {
		panic(err)
	}
	env, err := actuatorx.NewSafetyEnvelope(actuatorx.DefaultSafetyLimits(), tick)
	if err != nil {
		panic(err)
	}
	enc, err := actuatorx.NewPwmEncoder(actuatorx.DefaultSafetyLimits(), actuatorx.Increasing)
	if err != nil {
		panic(err)
	}
	return &Pipeline{Alloc: alloc, Env: env, Enc: enc, faults: make([]actuatorx.Fault, 0, 8)}
}

// Step runs allocation, the envelope and encoding for one command.
func (p *Pipeline) Step(c actuatorx.CommandVector) [actuatorx.NumMotors]actuatorx.MotorState {
	raw := p.Alloc.Allocate(c)
	p.faults = p.faults[:0]
	for _, m := range actuatorx.AllMotors {
		var speed float64
		speed, p.faults = p.Env.Apply(p.faults, m, raw[m], p.motors[m].Speed)
		p.motors[m] = actuatorx.MotorState{Speed: speed, PWM: p.Enc.Encode(speed)}
	}
	return p.motors
}

// GenCommands returns n commands around hover with some large excursions
// that trip the envelope.
func GenCommands(n int, seed int64) []actuatorx.CommandVector {
	rng := rand.New(rand.NewSource(seed))
	out := make([]actuatorx.CommandVector, n)
	for i := range out {
		out[i] = actuatorx.CommandVector{
			Thrust: 4 + rng.NormFloat64(),
			Pitch:  rng.NormFloat64() * 0.05,
			Roll:   rng.NormFloat64() * 0.05,
			Yaw:    rng.NormFloat64() * 0.002,
		}
		if i%50 == 0 {
			out[i].Thrust *= 10
		}
	}
	return out
}

// TimingChannel accepts every write and timestamps the first motor of each
// tick so tick jitter can be measured.
type TimingChannel struct {
	mu    sync.Mutex
	open  bool
	stamp []time.Time
}

func (c *TimingChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	return nil
}

func (c *TimingChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *TimingChannel) Write(m actuatorx.MotorIndex, pw int) error {
	if m != actuatorx.FrontLeft {
		return nil
	}
	c.mu.Lock()
	c.stamp = append(c.stamp, time.Now())
	c.mu.Unlock()
	return nil
}

func (c *TimingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// Intervals returns the gaps between consecutive ticks.
func (c *TimingChannel) Intervals() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stamp) < 2 {
		return nil
	}
	out := make([]time.Duration, len(c.stamp)-1)
	for i := 1; i < len(c.stamp); i++ {
		out[i-1] = c.stamp[i].Sub(c.stamp[i-1])
	}
	return out
}

// GenSnapshotYAML renders a flight snapshot with every fault kind counted.
func GenSnapshotYAML(ticks uint64) []byte {
	s := realtime.Snapshot{
		LoopID:      "bench",
		State:       actuatorx.Closed.String(),
		Ticks:       ticks,
		Limits:      actuatorx.DefaultSafetyLimits(),
		FaultCounts: map[string]uint64{},
		Timestamp:   time.Unix(0, 0).UTC(),
	}
	for k := actuatorx.SpeedBelowRange; k <= actuatorx.FullWriteFailure; k++ {
		s.FaultCounts[k.String()] = ticks / uint64(k)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		panic(err)
	}
	return data
}
