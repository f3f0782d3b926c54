package plugin

// EventType is the kind of a manager event.
type EventType int

const (
	EventLoaded EventType = iota
	EventUnloaded
	EventReloaded
	EventFailed
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventReloaded:
		return "reloaded"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle change of one plugin.
type Event struct {
	Type   EventType
	Plugin string
	Err    error
}

// Listener receives manager events.
type Listener func(Event)

// Subscribe adds a listener and returns a function removing it.
func (m *Manager) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	m.lmu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.lmu.Unlock()

	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

// emit calls listeners outside the plugin table lock; panics are logged.
func (m *Manager) emit(evt Event) {
	m.lmu.RLock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.lmu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error().Interface("panic", r).Str("plugin", evt.Plugin).Msg("plugin listener panicked")
				}
			}()
			l(evt)
		}()
	}
}
