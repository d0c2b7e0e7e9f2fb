package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// ErrChannelClosed is reported when a chunk arrives after the channel has
// been closed for writing. It is a recoverable per-chunk error; the session
// itself continues.
var ErrChannelClosed = errors.New("audio channel closed for writing")

// AudioChannel is the per-session unbounded chunk queue between transport
// ingestion and the drain task. Writers never block: chunks append to a
// grow-only list and a buffered wake signal nudges the single consumer.
// The channel is deliberately unbounded; dropping audio is worse than
// growing memory on a stalled drain task.
type AudioChannel struct {
	mu      sync.Mutex
	chunks  [][]byte
	closed  bool
	started bool
	wake    chan struct{}
}

// NewAudioChannel creates an open channel with no consumer attached.
func NewAudioChannel() *AudioChannel {
	return &AudioChannel{wake: make(chan struct{}, 1)}
}

// Write enqueues one audio chunk. It never blocks the caller. Returns
// ErrChannelClosed after Close.
func (c *AudioChannel) Write(chunk []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()

	metrics.ChannelDepth.Inc()
	c.signal()
	return nil
}

// Read returns the next chunk, blocking until one arrives, the channel is
// closed and drained (io.EOF), or ctx is done.
func (c *AudioChannel) Read(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		if len(c.chunks) > 0 {
			chunk := c.chunks[0]
			c.chunks = c.chunks[1:]
			c.mu.Unlock()
			metrics.ChannelDepth.Dec()
			return chunk, nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.wake:
		}
	}
}

// Close marks the channel closed for writing. Idempotent; the consumer
// drains remaining chunks and then observes io.EOF.
func (c *AudioChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Len reports queued chunks awaiting drain.
func (c *AudioChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// BeginDrain claims the consumer role. Only the first caller gets true, so
// a first-chunk race starts at most one drain task.
func (c *AudioChannel) BeginDrain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	c.started = true
	return true
}

func (c *AudioChannel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
