package telemetry

import (
	"log/slog"
	"sync"
	"time"
)

// ChannelSink fans events out to any number of subscriber channels
// registered via Subscribe. Emit never blocks: a subscriber whose buffer
// is full has the event dropped for it and a warning logged, rather than
// stalling the writer that called Emit.
type ChannelSink struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewChannelSink creates a ChannelSink. logger is used to warn about
// dropped events; pass slog.Default() if no specific logger is wired.
func NewChannelSink(logger *slog.Logger) *ChannelSink {
	return &ChannelSink{
		logger:      logger,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber channel with the given buffer
// size and returns it along with an unsubscribe function. Callers must
// keep draining the returned channel until they call unsubscribe.
func (c *ChannelSink) Subscribe(bufferSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufferSize)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, unsubscribe
}

// Emit fans e out to every current subscriber without blocking.
func (c *ChannelSink) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- e:
		default:
			c.logger.Warn("telemetry: subscriber buffer full, dropping event", "event", e.Name)
		}
	}
}

var _ Sink = (*ChannelSink)(nil)
