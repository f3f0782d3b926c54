package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog maps plugin names to their sources. It is filled from init()
// functions and read when plugins are loaded.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// DefaultCatalog is the catalog Register writes to.
var DefaultCatalog = NewCatalog()

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{sources: make(map[string]Source)}
}

// Register adds a source to DefaultCatalog. Call it from init().
func Register(name string, src Source) {
	if err := DefaultCatalog.Add(name, src); err != nil {
		panic(err)
	}
}

// Add adds a source under name.
func (c *Catalog) Add(name string, src Source) error {
	if name == "" || src == nil {
		return fmt.Errorf("%w: catalog entry needs a name and a source", ErrInvalidPlugin)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sources[name]; exists {
		return fmt.Errorf("plugin %q already in catalog", name)
	}
	c.sources[name] = src
	return nil
}

// Get returns the source registered under name.
func (c *Catalog) Get(name string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.sources[name]
	return src, ok
}

// Names returns every catalog entry, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sources))
	for name := range c.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
