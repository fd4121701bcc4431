package journal

import (
	"sync"
	"sync/atomic"
)

// BackpressureConfig sizes the two priority lanes of a BackpressureSink.
type BackpressureConfig struct {
	HighPriBuffer int
	LowPriBuffer  int
}

// DefaultBackpressureConfig mirrors the buffer sizes used elsewhere in this
// codebase for the analogous agent-event fan-out.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighPriBuffer: 32, LowPriBuffer: 256}
}

// isDroppable reports whether an event kind may be shed under backpressure.
// Only streaming/telemetry-style kinds are droppable; every lifecycle kind in
// the closed Kind enumeration is delivered or the sink is not yet safe to use
// for that kind.
func isDroppable(k Kind) bool {
	return droppableKinds[k]
}

// BackpressureSink buffers envelopes on two lanes so that a slow downstream
// consumer (a UI, a metrics exporter) cannot stall journal appends: high
// priority lifecycle events are queued in a small buffer that is serviced
// first, droppable events are queued in a larger low priority buffer and
// dropped once it is full.
type BackpressureSink struct {
	highPri chan Envelope
	lowPri  chan Envelope
	out     Sink
	dropped atomic.Int64
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewBackpressureSink starts a merge goroutine that drains both lanes into
// out, preferring the high priority lane whenever both have data.
func NewBackpressureSink(out Sink, cfg BackpressureConfig) *BackpressureSink {
	if cfg.HighPriBuffer <= 0 {
		cfg.HighPriBuffer = DefaultBackpressureConfig().HighPriBuffer
	}
	if cfg.LowPriBuffer <= 0 {
		cfg.LowPriBuffer = DefaultBackpressureConfig().LowPriBuffer
	}
	s := &BackpressureSink{
		highPri: make(chan Envelope, cfg.HighPriBuffer),
		lowPri:  make(chan Envelope, cfg.LowPriBuffer),
		out:     out,
		done:    make(chan struct{}),
	}
	go s.mergeLoop()
	return s
}

func (s *BackpressureSink) mergeLoop() {
	defer close(s.done)
	for {
		select {
		case e, ok := <-s.highPri:
			if !ok {
				s.drainLow()
				return
			}
			s.out.Emit(e)
		default:
			select {
			case e, ok := <-s.highPri:
				if !ok {
					s.drainLow()
					return
				}
				s.out.Emit(e)
			case e, ok := <-s.lowPri:
				if !ok {
					return
				}
				s.out.Emit(e)
			}
		}
	}
}

func (s *BackpressureSink) drainLow() {
	for {
		select {
		case e, ok := <-s.lowPri:
			if !ok {
				return
			}
			s.out.Emit(e)
		default:
			return
		}
	}
}

// Emit routes e to the appropriate lane. Non-droppable events block briefly
// (buffered channel send) and are never discarded by this sink; droppable
// events are discarded and counted when their lane is full.
func (s *BackpressureSink) Emit(e Envelope) {
	if s.closed.Load() {
		return
	}
	if isDroppable(e.Kind) {
		select {
		case s.lowPri <- e:
		default:
			s.dropped.Add(1)
		}
		return
	}
	select {
	case s.highPri <- e:
	default:
		// High priority lane is sized generously; if it is still full,
		// block briefly rather than lose a lifecycle event.
		s.highPri <- e
	}
}

// DroppedCount returns how many droppable events have been shed so far.
func (s *BackpressureSink) DroppedCount() int64 {
	return s.dropped.Load()
}

// Close stops accepting new events and waits for the merge loop to drain.
func (s *BackpressureSink) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.highPri)
		close(s.lowPri)
	})
	<-s.done
}
