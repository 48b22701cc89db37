package production

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/comalice/actuatorx/realtime"
)

// ChannelPublisher forwards tick reports to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch      chan<- realtime.TickReport
	dropped atomic.Uint64
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- realtime.TickReport) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, report realtime.TickReport) error {
	select {
	case p.ch <- report:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil // Non-blocking drop
	}
}

// Dropped counts reports discarded because the channel was full.
func (p *ChannelPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}

// LogPublisher writes one line per fault and ignores clean ticks.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher creates a LogPublisher writing to logger.
func NewLogPublisher(logger *log.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, report realtime.TickReport) error {
	for _, f := range report.Faults {
		p.logger.Printf("FAULT tick=%d motor=%d kind=%s requested=%g sent=%g",
			report.Tick, f.Motor.WireID(), f.Kind, f.Requested, f.Substituted)
	}
	return nil
}

// MultiPublisher fans a report out to several publishers, stopping at the
// first error.
type MultiPublisher []realtime.Publisher

func (m MultiPublisher) Publish(ctx context.Context, report realtime.TickReport) error {
	for _, p := range m {
		if err := p.Publish(ctx, report); err != nil {
			return err
		}
	}
	return nil
}
