package session

import (
	"context"
	"sync"
)

const stripeCount = 64

// stripes hands out one mutex per user hash bucket so two events for the
// same user serialize while unrelated users never contend on a global lock.
type stripes [stripeCount]sync.Mutex

func (s *stripes) lock(userID int64) *sync.Mutex {
	mu := &s[uint64(userID)%stripeCount]
	mu.Lock()
	return mu
}

// MemoryStore keeps sessions in process memory. Suitable for a single bot
// instance; sessions are lost on restart, which degrades gracefully to the
// idle state.
type MemoryStore struct {
	locks    stripes
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

func (m *MemoryStore) Update(ctx context.Context, userID int64, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := m.locks.lock(userID)
	defer lock.Unlock()

	m.mu.RLock()
	sess := m.sessions[userID]
	m.mu.RUnlock()

	if sess == nil {
		fresh := New()
		sess = &fresh
		m.mu.Lock()
		m.sessions[userID] = sess
		m.mu.Unlock()
	}
	sess.EnsureCart()

	return fn(sess)
}

func (m *MemoryStore) Peek(ctx context.Context, userID int64) (Session, bool) {
	// Take the same stripe Update holds so the copy never observes a
	// session mid-mutation; the clone detaches the cart map as well.
	lock := m.locks.lock(userID)
	defer lock.Unlock()

	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return sess.Clone(), true
}

func (m *MemoryStore) Reset(ctx context.Context, userID int64) error {
	lock := m.locks.lock(userID)
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}
