package cache

// EventType identifies what happened to a key.
type EventType int

const (
	// EventSet is raised after a value is stored.
	EventSet EventType = iota
	// EventDelete is raised after a live entry is deleted.
	EventDelete
	// EventExpired is raised once per key when an expired entry is purged,
	// whether by a read or by the sweep.
	EventExpired
	// EventFlush is raised after Flush. Key is empty.
	EventFlush
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventSet:
		return "set"
	case EventDelete:
		return "delete"
	case EventExpired:
		return "expired"
	case EventFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Event describes a cache mutation.
type Event struct {
	Type EventType
	Key  string
}

// Listener receives cache events. Listeners run synchronously on the
// goroutine that caused the event and must not call back into the cache
// in a way that blocks.
type Listener func(Event)

// OnEvent registers a listener.
func (c *Cache) OnEvent(l Listener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Cache) emit(evt Event) {
	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, l := range listeners {
		l(evt)
	}
}
