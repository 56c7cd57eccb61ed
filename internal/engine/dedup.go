package engine

import "container/list"

// dedupCache is a capacity-bounded LRU over request idempotency keys.
// Not thread-safe; only the single-threaded engine touches it.
type dedupCache struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newDedupCache(capacity int) *dedupCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &dedupCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (d *dedupCache) Contains(key string) bool {
	elem, ok := d.cache[key]
	if ok {
		d.order.MoveToFront(elem)
	}
	return ok
}

func (d *dedupCache) Add(key string) {
	if elem, ok := d.cache[key]; ok {
		d.order.MoveToFront(elem)
		return
	}

	elem := d.order.PushFront(key)
	d.cache[key] = elem

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.cache, oldest.Value.(string))
		}
	}
}

// Warm preloads keys, oldest first, e.g. from a persisted operation log.
func (d *dedupCache) Warm(keys []string) {
	for _, k := range keys {
		d.Add(k)
	}
}
