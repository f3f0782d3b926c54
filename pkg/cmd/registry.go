package cmd

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateName matches every DuplicateNameError.
	ErrDuplicateName = errors.New("duplicate command name")

	// ErrInvalidCommand is returned for nil commands or empty names.
	ErrInvalidCommand = errors.New("invalid command")
)

// DuplicateNameError reports a name or alias that is already taken.
type DuplicateNameError struct {
	Name     string // the colliding name or alias
	Command  string // command being registered
	Existing string // command that already owns Name
	Owner    string // owner of Existing; empty for static commands
}

func (e *DuplicateNameError) Error() string {
	owner := e.Owner
	if owner == "" {
		owner = "static"
	}
	return fmt.Sprintf("command %q: name %q already taken by %q (%s)", e.Command, e.Name, e.Existing, owner)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

type registration struct {
	cmd   Command
	owner string
}

// Registry stores commands by primary name and alias in one flat,
// case-insensitive namespace. It does not dispatch; the router resolves
// commands through it. It is safe for concurrent use and optimised for
// reads.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*registration // primary name -> registration
	aliases  map[string]string        // alias -> primary name
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*registration),
		aliases:  make(map[string]string),
	}
}

// Register adds commands on behalf of owner (a plugin name, or "" for
// static commands). Either every command is registered or none is.
func (r *Registry) Register(owner string, cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(cmds); err != nil {
		return err
	}
	for _, c := range cmds {
		name := Normalize(c.Name())
		r.commands[name] = &registration{cmd: c, owner: owner}
		for _, alias := range names(c)[1:] {
			r.aliases[alias] = name
		}
	}
	return nil
}

// Check reports whether cmds could be registered right now, without
// registering anything.
func (r *Registry) Check(cmds ...Command) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(cmds)
}

func (r *Registry) check(cmds []Command) error {
	batch := make(map[string]string)
	for _, c := range cmds {
		if c == nil || Normalize(c.Name()) == "" {
			return ErrInvalidCommand
		}
		cname := Normalize(c.Name())
		for _, n := range names(c) {
			if existing, owner, ok := r.lookup(n); ok {
				return &DuplicateNameError{Name: n, Command: cname, Existing: existing, Owner: owner}
			}
			if other, ok := batch[n]; ok {
				return &DuplicateNameError{Name: n, Command: cname, Existing: other}
			}
			batch[n] = cname
		}
	}
	return nil
}

func (r *Registry) lookup(n string) (primary, owner string, ok bool) {
	if reg, found := r.commands[n]; found {
		return n, reg.owner, true
	}
	if p, found := r.aliases[n]; found {
		return p, r.commands[p].owner, true
	}
	return "", "", false
}

// Unregister removes a command and its aliases by primary name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(Normalize(name))
}

// UnregisterOwner removes every command registered by owner and returns
// their names, sorted.
func (r *Registry) UnregisterOwner(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, reg := range r.commands {
		if reg.owner == owner {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		r.remove(name)
	}
	sort.Strings(removed)
	return removed
}

func (r *Registry) remove(name string) bool {
	reg, ok := r.commands[name]
	if !ok {
		return false
	}
	delete(r.commands, name)
	for _, alias := range names(reg.cmd)[1:] {
		if r.aliases[alias] == name {
			delete(r.aliases, alias)
		}
	}
	return true
}

// Resolve finds a command by primary name first, then by alias.
func (r *Registry) Resolve(name string) (Command, bool) {
	n := Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.commands[n]; ok {
		return reg.cmd, true
	}
	if p, ok := r.aliases[n]; ok {
		return r.commands[p].cmd, true
	}
	return nil, false
}

// Owner returns who registered the command with the given primary name.
func (r *Registry) Owner(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.commands[Normalize(name)]
	if !ok {
		return "", false
	}
	return reg.owner, true
}

// All returns all registered commands, sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, reg := range r.commands {
		list = append(list, reg.cmd)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return Normalize(list[i].Name()) < Normalize(list[j].Name())
	})
	return list
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// names returns the normalized primary name followed by the distinct
// aliases of c.
func names(c Command) []string {
	primary := Normalize(c.Name())
	out := []string{primary}
	seen := map[string]bool{primary: true}
	for _, a := range c.Aliases() {
		a = Normalize(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
