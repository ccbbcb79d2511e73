package session

import (
	"sort"
	"sync"
	"time"

	"github.com/tansive/chatbridge/internal/bridge/observability"
	"github.com/tansive/chatbridge/internal/bridge/provider"
	"github.com/tansive/chatbridge/internal/common/apperrors"
)

// Status is the lifecycle state of a session as seen by HTTP callers.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusQRReady      Status = "qr_ready"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Session is a snapshot of one store entry. Values returned by the Store are
// copies; mutating them has no effect on the store.
type Session struct {
	ID           string          `json:"sessionId"`
	Status       Status          `json:"status"`
	DriverStatus string          `json:"driverStatus,omitempty"`
	QRCode       string          `json:"qrCode,omitempty"`
	Client       provider.Client `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// HasClient reports whether the external session was established.
func (s Session) HasClient() bool {
	return s.Client != nil
}

// Store is the in-memory registry of live sessions. A single RWMutex guards the
// map and every field mutation, so reads never observe a partial update.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewStore returns an empty store. metrics may be nil.
func NewStore(metrics *observability.Metrics) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Put adds a new entry. An id already present is rejected so ids are never shared
// between two sessions.
func (s *Store) Put(sess Session) apperrors.Error {
	if sess.ID == "" {
		return ErrBadRequest.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrAlreadyExists
	}
	now := s.now()
	if sess.Status == "" {
		sess.Status = StatusInitializing
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.sessions[sess.ID] = &sess
	s.metrics.SessionAdded()
	return nil
}

// Get returns a snapshot of the entry for id.
func (s *Store) Get(id string) (Session, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Remove deletes the entry for id and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.metrics.SessionRemoved()
	return true
}

// SetQRCode records a fresh pairing code and moves the session to qr_ready.
func (s *Store) SetQRCode(id string, qrCode string) bool {
	return s.update(id, func(sess *Session) {
		sess.QRCode = qrCode
		sess.Status = StatusQRReady
	})
}

// SetStatus records the raw driver status and, when status is not empty, the
// mapped lifecycle status. Leaving qr_ready clears the pairing code.
func (s *Store) SetStatus(id string, status Status, driverStatus string) (Session, bool) {
	var snapshot Session
	ok := s.update(id, func(sess *Session) {
		sess.DriverStatus = driverStatus
		if status != "" {
			sess.Status = status
		}
		if sess.Status != StatusQRReady {
			sess.QRCode = ""
		}
		snapshot = *sess
	})
	return snapshot, ok
}

// SetClient attaches the external session handle. It fails when the entry is gone,
// in which case the caller still owns client.
func (s *Store) SetClient(id string, client provider.Client) bool {
	return s.update(id, func(sess *Session) {
		sess.Client = client
	})
}

// MarkError moves the session to the error state.
func (s *Store) MarkError(id string) bool {
	return s.update(id, func(sess *Session) {
		sess.Status = StatusError
		sess.QRCode = ""
	})
}

// List returns snapshots of every entry ordered by creation time.
func (s *Store) List() []Session {
	s.mu.RLock()
	list := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, *sess)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) update(id string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(sess)
	sess.UpdatedAt = s.now()
	return true
}
