package session

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNotFound is returned by stores when no session exists for a user.
var ErrNotFound = errors.New("session not found")

// Store is the durable backing for sessions.
type Store interface {
	GetSession(ctx context.Context, userID int64) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
}

const defaultCacheCapacity = 1024

// Manager combines the durable store with a bounded in-process LRU cache.
// The store is the source of truth; the cache only saves a read on the hot
// path and is rehydrated from the store after a restart.
type Manager struct {
	store    Store
	logger   *zap.Logger
	capacity int

	mu      sync.Mutex
	entries map[int64]*list.Element
	order   *list.List
}

type cacheEntry struct {
	userID  int64
	session *Session
}

func NewManager(store Store, capacity int, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:    store,
		logger:   logger,
		capacity: capacity,
		entries:  make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// Hydrate returns the session for the user, reading through the cache to the
// store and creating a fresh record when none exists yet.
func (m *Manager) Hydrate(ctx context.Context, userID int64, role Role) (*Session, error) {
	if cached := m.lookup(userID); cached != nil {
		return cached, nil
	}

	s, err := m.store.GetSession(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s = New(userID, role)
			if err := m.store.SaveSession(ctx, s); err != nil {
				return nil, fmt.Errorf("create session: %w", err)
			}
			m.put(s)
			return s.Clone(), nil
		}
		return nil, fmt.Errorf("hydrate session: %w", err)
	}

	m.put(s)
	return s.Clone(), nil
}

// Persist writes the session durably and refreshes the cache. Last write
// wins; two racing turns for one user are resolved by write order.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.put(s)
	return nil
}

// Invalidate drops the cached copy for a user.
func (m *Manager) Invalidate(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[userID]; ok {
		m.order.Remove(el)
		delete(m.entries, userID)
	}
}

func (m *Manager) lookup(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[userID]
	if !ok {
		return nil
	}
	m.order.MoveToFront(el)
	return el.Value.(*cacheEntry).session.Clone()
}

func (m *Manager) put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[s.UserID]; ok {
		el.Value.(*cacheEntry).session = s.Clone()
		m.order.MoveToFront(el)
		return
	}

	m.entries[s.UserID] = m.order.PushFront(&cacheEntry{userID: s.UserID, session: s.Clone()})

	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		entry := m.order.Remove(oldest).(*cacheEntry)
		delete(m.entries, entry.userID)
	}
}
