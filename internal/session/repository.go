package session

import (
	"errors"
	"sync"

	"github.com/crosstalk-ai/gateway/internal/metrics"
)

// ErrSessionNotFound is reported for lookups by unknown session or
// connection ids. It surfaces to the caller and publishes no event.
var ErrSessionNotFound = errors.New("session not found")

// Repository is the in-process session directory, indexed both by session
// id and by connection id (a 1:1 pair kept in sync on save). It is safe
// for concurrent use and holds no hidden package-level state.
type Repository struct {
	byID   sync.Map // session id → *Session
	byConn sync.Map // connection id → *Session
}

// NewRepository creates an empty session directory.
func NewRepository() *Repository {
	return &Repository{}
}

// CreateOrGet returns the session bound to connectionID, creating one on
// first use. created reports whether this call created it; a racing pair
// of callers observes exactly one created session.
func (r *Repository) CreateOrGet(connectionID string, cfg Config) (sess *Session, created bool) {
	if existing, ok := r.byConn.Load(connectionID); ok {
		return existing.(*Session), false
	}

	fresh := New(connectionID, cfg)
	actual, loaded := r.byConn.LoadOrStore(connectionID, fresh)
	sess = actual.(*Session)
	if loaded {
		return sess, false
	}

	r.byID.Store(sess.ID, sess)
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	return sess, true
}

// Save updates both indices atomically enough for lock-free readers: each
// index entry is replaced in one Store call.
func (r *Repository) Save(sess *Session) {
	r.byID.Store(sess.ID, sess)
	r.byConn.Store(sess.ConnectionID, sess)
}

// ByID looks up a session by its session id.
func (r *Repository) ByID(id string) (*Session, error) {
	if v, ok := r.byID.Load(id); ok {
		return v.(*Session), nil
	}
	return nil, ErrSessionNotFound
}

// ByConnection looks up a session by its connection id.
func (r *Repository) ByConnection(connectionID string) (*Session, error) {
	if v, ok := r.byConn.Load(connectionID); ok {
		return v.(*Session), nil
	}
	return nil, ErrSessionNotFound
}

// Remove deletes a session from both indices.
func (r *Repository) Remove(sess *Session) {
	r.byID.Delete(sess.ID)
	r.byConn.Delete(sess.ConnectionID)
}

// All returns a snapshot of every registered session.
func (r *Repository) All() []*Session {
	var out []*Session
	r.byID.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	return out
}
