// Package realtime provides the fixed-rate actuation loop for actuatorx.
//
// A Loop owns one HardwareChannel and reads commands from a CommandSource.
// Every tick it runs, in order:
//  1. Latest command (non-blocking; the previous command is reused)
//  2. Allocation to raw squared motor speeds
//  3. Speed clamp, then acceleration clamp against the previous tick
//  4. PWM encoding
//  5. One write attempt per motor, then state advance and reporting
//
// # Example Usage
//
//	slot := realtime.NewCommandSlot()
//	loop, _ := realtime.NewLoop(realtime.DefaultConfig(), ch, slot)
//	if err := loop.Start(ctx); err != nil {
//		// errors.Is(err, actuatorx.ErrChannelUnavailable)
//	}
//	slot.Store(actuatorx.CommandVector{Thrust: 9.81})
//	defer loop.Stop()
//
// # Lifecycle
//
// Start opens the channel and writes the idle pulse (Idling). After the
// settle delay the loop enters Running. A stop request, a cancelled context,
// or a tick in which all four writes fail moves it to ShuttingDown: the idle
// pulse is written, the channel closed, and the loop ends in Closed.
//
// # Faults
//
// Limit violations and partial write failures never stop the loop. The
// substituted value is used and a Fault is pushed to the FaultStream and to
// the optional Publisher. Only a full write failure changes state.
//
// # Timing
//
// The tick goroutine is locked to its OS thread and driven by a time.Ticker.
// Stop is a flag checked at every tick, so shutdown latency is bounded by
// one tick period plus one channel write.
package realtime
