package dedup

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrDuplicate is returned by stores when the event id was already recorded.
var ErrDuplicate = errors.New("event already processed")

// Store is the durable side of the gate: an insert-only write with a unique
// constraint on the event id.
type Store interface {
	InsertProcessedEvent(ctx context.Context, eventID, userID int64) error
}

const defaultCapacity = 4096

// Gate deduplicates inbound events by event id. The in-memory FIFO set
// catches bursts and same-process redeliveries cheaply; the durable store
// catches cross-process and crash-redelivery duplicates and stays
// authoritative for anything evicted locally.
type Gate struct {
	store    Store
	logger   *zap.Logger
	capacity int

	mu    sync.Mutex
	seen  map[int64]*list.Element
	order *list.List
}

// New creates a Gate. store may be nil, in which case only the in-memory set
// is consulted.
func New(store Store, capacity int, logger *zap.Logger) *Gate {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		store:    store,
		logger:   logger,
		capacity: capacity,
		seen:     make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// ShouldProcess reports whether the event is seen for the first time. A
// duplicate returns false; a durable-store outage fails open so that no real
// user message is ever dropped without a single delivery attempt.
func (g *Gate) ShouldProcess(ctx context.Context, eventID, userID int64) bool {
	if !g.admitLocal(eventID) {
		return false
	}

	if g.store == nil {
		return true
	}

	err := g.store.InsertProcessedEvent(ctx, eventID, userID)
	if err == nil {
		return true
	}

	if errors.Is(err, ErrDuplicate) {
		// Another process or a previous run already handled this event.
		g.forgetLocal(eventID)
		return false
	}

	g.logger.Warn("idempotency store write failed, admitting event once",
		zap.Int64("event_id", eventID),
		zap.Int64("user_id", userID),
		zap.Error(err),
	)
	return true
}

// admitLocal inserts the event id into the bounded FIFO set, evicting the
// oldest ids past capacity. Returns false when the id was already present.
func (g *Gate) admitLocal(eventID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[eventID]; ok {
		return false
	}

	g.seen[eventID] = g.order.PushBack(eventID)

	for g.order.Len() > g.capacity {
		oldest := g.order.Front()
		if oldest == nil {
			break
		}
		id := g.order.Remove(oldest).(int64)
		delete(g.seen, id)
	}

	return true
}

func (g *Gate) forgetLocal(eventID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if el, ok := g.seen[eventID]; ok {
		g.order.Remove(el)
		delete(g.seen, eventID)
	}
}
