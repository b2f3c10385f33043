package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/genricoloni/playerwatch/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultEventBuffer = 64

// EventStream is the ordered queue between the watcher and its consumers.
// A full queue blocks the watcher instead of dropping events.
type EventStream struct {
	ch      chan domain.Event
	logger  *zap.Logger
	fullLog rate.Sometimes

	closeOnce sync.Once
	mu        sync.Mutex
	cause     error
	reported  bool
}

func newEventStream(capacity int, logger *zap.Logger) *EventStream {
	if capacity <= 0 {
		capacity = defaultEventBuffer
	}
	return &EventStream{
		ch:     make(chan domain.Event, capacity),
		logger: logger,
		// Rate limit to max one warning per 5 seconds
		fullLog: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Recv blocks until an event is available, ctx ends, or the stream terminated.
// Buffered events are drained before termination is reported. The terminal
// cause is returned to exactly one caller; later calls get ErrChannelClosed.
func (s *EventStream) Recv(ctx context.Context) (domain.Event, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return nil, s.terminal()
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events returns the receive side for select-based consumers.
// The channel is closed on termination; Err then reports the cause.
func (s *EventStream) Events() <-chan domain.Event {
	return s.ch
}

// Err returns the terminal cause, nil while running or after a clean stop
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// publish must only be called by the single producer
func (s *EventStream) publish(ctx context.Context, ev domain.Event) error {
	select {
	case s.ch <- ev:
		return nil
	default:
	}

	metrics.EventChannelBlockedTotal.Inc()
	s.fullLog.Do(func() {
		s.logger.Warn("Events channel full, waiting for consumer",
			zap.Int("capacity", cap(s.ch)),
			zap.String("kind", string(ev.Kind())))
	})

	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close terminates the stream once; cause is nil for a clean shutdown
func (s *EventStream) close(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.mu.Unlock()
		close(s.ch)
	})
}

func (s *EventStream) terminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cause != nil && !s.reported {
		s.reported = true
		return s.cause
	}
	return domain.ErrChannelClosed
}
