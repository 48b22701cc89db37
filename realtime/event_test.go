package realtime

import (
	"testing"
	"time"

	"github.com/comalice/actuatorx"
)

func TestFaultStreamDropsWhenFull(t *testing.T) {
	s := NewFaultStream(4)
	defer s.Close()
	for i := 0; i < 6; i++ {
		s.offer(FaultEvent{Tick: uint64(i), SequenceNum: uint64(i + 1)})
	}
	if s.Len() != 4 {
		t.Errorf("Len = %d, want 4", s.Len())
	}
	if s.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", s.Dropped())
	}
	got := s.Drain()
	if len(got) != 4 || got[0].Tick != 0 || got[3].Tick != 3 {
		t.Errorf("Drain = %+v, want the first four", got)
	}
}

func TestFaultStreamNext(t *testing.T) {
	s := NewFaultStream(8)
	defer s.Close()

	if _, ok := s.Next(0); ok {
		t.Fatal("Next(0) on empty stream returned an event")
	}
	start := time.Now()
	if _, ok := s.Next(5 * time.Millisecond); ok {
		t.Fatal("Next on empty stream returned an event")
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Next returned before its timeout")
	}

	want := FaultEvent{Tick: 3, SequenceNum: 9, Fault: actuatorx.Fault{Motor: actuatorx.RearLeft, Kind: actuatorx.SpeedAboveRange}}
	s.offer(want)
	got, ok := s.Next(time.Second)
	if !ok || got != want {
		t.Fatalf("Next = %+v, %v; want %+v", got, ok, want)
	}
}

func TestFaultStreamCloseWakesReader(t *testing.T) {
	s := NewFaultStream(8)
	done := make(chan bool)
	go func() {
		_, ok := s.Next(10 * time.Second)
		done <- ok
	}()
	time.Sleep(5 * time.Millisecond)
	s.Close()
	select {
	case ok := <-done:
		if ok {
			t.Error("reader got an event from a closed stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake the reader")
	}
}

func TestSortEvents(t *testing.T) {
	events := []FaultEvent{
		{Tick: 2, SequenceNum: 5},
		{Tick: 1, SequenceNum: 3},
		{Tick: 2, SequenceNum: 4},
		{Tick: 1, SequenceNum: 2},
	}
	sortEvents(events)
	for i := 1; i < len(events); i++ {
		a, b := events[i-1], events[i]
		if a.Tick > b.Tick || (a.Tick == b.Tick && a.SequenceNum > b.SequenceNum) {
			t.Fatalf("events out of order: %+v", events)
		}
	}
}
