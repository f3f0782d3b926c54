package plugin

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a plugin.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateActive
	StateFailed
	StateUnloading
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateUnloaded; st <= StateUnloading; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown plugin state %q", text)
}

// busy reports whether the plugin is between stable states.
func (s State) busy() bool {
	return s == StateLoading || s == StateUnloading
}

// Descriptor is a snapshot of one plugin as seen by the manager.
type Descriptor struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Dependencies []string  `json:"dependencies,omitempty"`
	State        State     `json:"state"`
	Commands     []string  `json:"commands,omitempty"`
	Hooks        []string  `json:"hooks,omitempty"` // "event/name"
	Err          error     `json:"-"`
	LastError    string    `json:"last_error,omitempty"`
	LoadedAt     time.Time `json:"loaded_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (d Descriptor) clone() Descriptor {
	d.Dependencies = append([]string(nil), d.Dependencies...)
	d.Commands = append([]string(nil), d.Commands...)
	d.Hooks = append([]string(nil), d.Hooks...)
	if d.Err != nil {
		d.LastError = d.Err.Error()
	}
	return d
}
