package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/scribe/internal/store"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// SessionTracker keeps live sessions in memory and writes every change
// through to the store when one is configured. Readers get copies.
type SessionTracker struct {
	mu       sync.RWMutex
	store    store.Storage
	sessions map[string]*store.Session
	now      func() time.Time
}

// NewSessionTracker creates a tracker. s may be nil for an in-memory only
// tracker.
func NewSessionTracker(s store.Storage) *SessionTracker {
	return &SessionTracker{
		store:    s,
		sessions: make(map[string]*store.Session),
		now:      time.Now,
	}
}

// Ensure returns the session with id, loading it from the store or creating
// it when it does not exist yet.
func (st *SessionTracker) Ensure(id string, metadata map[string]string) (*store.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[id]; ok {
		return cloneSession(sess), nil
	}

	if st.store != nil {
		sess, err := st.store.GetSession(id)
		if err == nil {
			st.sessions[id] = sess
			return cloneSession(sess), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
	}

	now := st.now()
	sess := &store.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    store.StatusRunning,
		Metadata:  metadata,
	}
	if st.store != nil {
		if err := st.store.CreateSession(sess); err != nil {
			return nil, fmt.Errorf("create session %s: %w", id, err)
		}
	}
	st.sessions[id] = sess
	return cloneSession(sess), nil
}

// AddTurn appends a turn to a tracked session.
func (st *SessionTracker) AddTurn(id, role, text string) (store.Turn, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return store.Turn{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}

	turn := store.Turn{
		Seq:       len(sess.Turns) + 1,
		Role:      role,
		Text:      text,
		Timestamp: st.now(),
	}
	if st.store != nil {
		saved, err := st.store.AppendTurn(id, turn)
		if err != nil {
			return store.Turn{}, fmt.Errorf("append turn: %w", err)
		}
		turn = saved
	}

	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = turn.Timestamp
	return turn, nil
}

// SetStatus updates the session status and persists it.
func (st *SessionTracker) SetStatus(id, status string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	sess.Status = status
	sess.UpdatedAt = st.now()
	if st.store != nil {
		return st.store.UpdateSession(sess)
	}
	return nil
}

// Get returns a copy of a tracked session.
func (st *SessionTracker) Get(id string) (*store.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

// Turns returns a copy of the session's turns.
func (st *SessionTracker) Turns(id string) []store.Turn {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if sess, ok := st.sessions[id]; ok {
		turns := make([]store.Turn, len(sess.Turns))
		copy(turns, sess.Turns)
		return turns
	}
	return nil
}

// Forget drops the in-memory copy of a session.
func (st *SessionTracker) Forget(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func cloneSession(s *store.Session) *store.Session {
	c := *s
	c.Turns = append([]store.Turn(nil), s.Turns...)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
