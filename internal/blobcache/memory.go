package blobcache

import (
	"container/list"
	"sync"
)

// memoryTier is a bounded map evicting the least recently touched key.
// Absent results are stored too, with present=false.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

type memoryEntry struct {
	key     string
	data    []byte
	present bool
}

func newMemoryTier(capacity int) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// get reports ok=false when the key is unknown to this tier.
func (m *memoryTier) get(key string) (data []byte, present, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, false
	}
	m.order.MoveToFront(el)
	e := el.Value.(*memoryEntry)
	return e.data, e.present, true
}

func (m *memoryTier) set(key string, data []byte, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.data, e.present = data, present
		m.order.MoveToFront(el)
		return
	}

	m.items[key] = m.order.PushFront(&memoryEntry{key: key, data: data, present: present})
	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryEntry).key)
	}
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
