package gossip

import (
	"container/list"
	"sync"
)

// DefaultSeenCapacity bounds the duplicate-suppression window. Ids beyond
// the capacity are evicted oldest-first; an evicted id arriving again would
// be re-delivered, so size the capacity to exceed the message volume within
// the longest plausible forwarding loop.
const DefaultSeenCapacity = 8192

// SeenSet records message ids this node has already processed. It is a
// bounded LRU: insertion refreshes recency, and the oldest id is evicted
// when the capacity is exceeded. Safe for concurrent use.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	ids      map[string]*list.Element
}

// NewSeenSet creates a SeenSet. A non-positive capacity falls back to
// DefaultSeenCapacity.
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &SeenSet{
		capacity: capacity,
		order:    list.New(),
		ids:      make(map[string]*list.Element, capacity),
	}
}

// Add records id as seen. It returns true if the id was new and false if it
// was already present (a duplicate). Either way the id becomes the most
// recently seen.
func (s *SeenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.ids[id]; ok {
		s.order.MoveToFront(elem)
		return false
	}

	s.ids[id] = s.order.PushFront(id)
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.ids, oldest.Value.(string))
	}
	return true
}

// Contains reports whether id has been seen, without refreshing recency.
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids currently tracked.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
