// Package sink provides EventSink implementations bridging the routing
// core to delivery transports.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-direct/contract"
	"chat-direct/domain/event"
	"chat-direct/errors"
)

// ChannelSink buffers outbound events for a single connection. The write
// pump of the transport drains Events; a consumer that cannot keep up
// within the timeout loses the event rather than stalling the router.
type ChannelSink struct {
	Events chan event.Outbound

	log     *slog.Logger
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewChannelSink(log *slog.Logger, bufferSize int, timeout time.Duration) *ChannelSink {
	return &ChannelSink{
		Events:  make(chan event.Outbound, bufferSize),
		log:     log,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (s *ChannelSink) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case s.Events <- e:
		return nil
	case <-s.done:
		// Connection already gone; the delivery sweep will catch up.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		s.log.Warn("Dropping event for slow consumer", "event", e.EventType())
		return errors.ErrSlowConsumer
	}
}

// Done exposes closure so transports can stop their write pump.
func (s *ChannelSink) Done() <-chan struct{} { return s.done }

func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

var _ contract.EventSink = (*ChannelSink)(nil)
