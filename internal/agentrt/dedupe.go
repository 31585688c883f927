package agentrt

import (
	"container/list"
	"sync"
)

// dedupeSet is a bounded LRU set keyed by (task_id, intent, sender_timestamp).
// SeenOrAdd reports whether the key was already present, dropping it
// silently on the caller's behalf; otherwise it records the key and evicts
// the oldest entry if the set is over capacity.
type dedupeSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupeSet(capacity int) *dedupeSet {
	if capacity <= 0 {
		capacity = 1024
	}
	return &dedupeSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// SeenOrAdd returns true if key was already present (a duplicate), false
// if it was newly recorded.
func (d *dedupeSet) SeenOrAdd(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, ok := d.index[key]; ok {
		d.order.MoveToFront(elem)
		return true
	}

	elem := d.order.PushFront(key)
	d.index[key] = elem

	for d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest == nil {
			break
		}
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}

	return false
}
