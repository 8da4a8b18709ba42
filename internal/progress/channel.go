package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the queue depth used when none is configured.
const DefaultCapacity = 100

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("progress channel closed")

// Channel is a bounded FIFO of snapshots with one producer and one
// consumer. The producer closes it after its terminal snapshot; the
// consumer drains Receive until it is closed.
type Channel struct {
	ch        chan Snapshot
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
}

// NewChannel creates a channel holding at most capacity pending snapshots.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{ch: make(chan Snapshot, capacity)}
}

// Send enqueues s, blocking while the queue is full. It gives up when ctx
// is done.
func (c *Channel) Send(ctx context.Context, s Snapshot) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.ch <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues s without blocking. A full queue drops s and returns
// false; snapshots supersede each other so the next one carries the news.
func (c *Channel) TrySend(s Snapshot) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.ch <- s:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Close ends the stream. Only the producer calls it.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.ch)
	})
}

// Receive returns the consumer side.
func (c *Channel) Receive() <-chan Snapshot {
	return c.ch
}

// Dropped returns how many snapshots TrySend discarded.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Len returns the number of queued snapshots.
func (c *Channel) Len() int {
	return len(c.ch)
}
