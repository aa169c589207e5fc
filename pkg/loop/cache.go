package loop

// Cache memoises loop decompositions by stiffness key. Entries are never evicted.
type Cache struct {
	snapshots map[string]*Snapshot
	hits      int
	misses    int
}

func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]*Snapshot)}
}

// Get returns the snapshot stored under key, running generate on the first request only.
func (c *Cache) Get(key string, generate func() (*Snapshot, error)) (*Snapshot, error) {
	if snap, ok := c.snapshots[key]; ok {
		c.hits++
		return snap, nil
	}

	snap, err := generate()
	if err != nil {
		return nil, err
	}
	c.misses++
	c.snapshots[key] = snap
	return snap, nil
}

func (c *Cache) Len() int {
	return len(c.snapshots)
}

func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
