package audit

import (
	"context"
	"sync/atomic"
)

// ChannelPublisher decouples event emission from delivery: Publish enqueues
// onto a bounded inbox and a worker drains it to the real sink. When the
// inbox is full the event is dropped and counted rather than blocking the
// request path.
type ChannelPublisher struct {
	inbox   chan Event
	dropped atomic.Int64
}

func NewChannelPublisher(capacity int) *ChannelPublisher {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ChannelPublisher{inbox: make(chan Event, capacity)}
}

func (p *ChannelPublisher) Publish(_ context.Context, event Event) error {
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// Inbox exposes the receive side for the draining worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.inbox
}

// Dropped reports how many events were discarded due to a full inbox.
func (p *ChannelPublisher) Dropped() int64 {
	return p.dropped.Load()
}
