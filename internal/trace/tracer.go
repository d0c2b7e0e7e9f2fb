package trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxIOLen = 500

type traceMsg struct {
	kind     string // "exchange_create", "exchange_update", "span"
	exchange Exchange
	span     Span
}

// Tracer writes trace data asynchronously via a buffered channel so database
// latency never stalls the audio pipeline. All methods are nil-safe.
type Tracer struct {
	store          *Store
	conversationID string
	ch             chan traceMsg
	done           chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewTracer creates a tracer bound to one conversation. Call Close when the
// session ends.
func NewTracer(store *Store, conversationID string) *Tracer {
	t := &Tracer{
		store:          store,
		conversationID: conversationID,
		ch:             make(chan traceMsg, 64),
		done:           make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		var err error
		switch msg.kind {
		case "exchange_create":
			err = t.store.CreateExchange(msg.exchange.ID, t.conversationID)
		case "exchange_update":
			err = t.store.UpdateExchange(msg.exchange)
		case "span":
			err = t.store.CreateSpan(msg.span)
		}
		if err != nil {
			slog.Warn("trace write failed", "kind", msg.kind, "error", err)
		}
	}
}

// StartExchange begins a new exchange record and returns its ID.
func (t *Tracer) StartExchange() string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.send(traceMsg{kind: "exchange_create", exchange: Exchange{ID: id}})
	return id
}

// EndExchange finalizes an exchange record.
func (t *Tracer) EndExchange(ex Exchange) {
	if t == nil {
		return
	}
	ex.Utterance = truncate(ex.Utterance, maxIOLen)
	ex.Translation = truncate(ex.Translation, maxIOLen)
	t.send(traceMsg{kind: "exchange_update", exchange: ex})
}

// RecordSpan records one completed pipeline stage.
func (t *Tracer) RecordSpan(exchangeID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			ExchangeID: exchangeID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxIOLen),
			Output:     truncate(output, maxIOLen),
			Status:     status,
			Error:      errMsg,
		},
	})
}

// send drops the message rather than block when the buffer is full, and
// drops it outright after Close. A late write from an in-flight response
// cycle must never crash the process over a lost trace row.
func (t *Tracer) send(m traceMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		slog.Warn("trace write after close, dropping", "kind", m.kind)
		return
	}
	select {
	case t.ch <- m:
	default:
		slog.Warn("trace buffer full, dropping write", "kind", m.kind)
	}
}

// Close drains pending writes and stops the background goroutine. Writes
// arriving after Close are dropped. Idempotent.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
