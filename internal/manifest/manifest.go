// Package manifest reads the plugin manifest: which catalog plugins to load
// and in what order. YAML, TOML and JSON files are accepted.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const pluginsKey = "plugins"

type Entry struct {
	Name    string `mapstructure:"name"`
	Enabled *bool  `mapstructure:"enabled"` // nil means enabled
}

// On reports whether the entry should be loaded.
func (e Entry) On() bool { return e.Enabled == nil || *e.Enabled }

type Manifest struct {
	Path    string
	Plugins []Entry
	// Implicit is set when no file existed and the catalog was used instead.
	Implicit bool
}

// Load reads path. A missing file yields every name in catalog, sorted.
func Load(path string, catalog []string) (*Manifest, error) {
	if path == "" {
		return implicit(path, catalog), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return implicit(path, catalog), nil
	} else if err != nil {
		return nil, fmt.Errorf("stat manifest: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var entries []Entry
	if err := v.UnmarshalKey(pluginsKey, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		name := strings.ToLower(strings.TrimSpace(entries[i].Name))
		if name == "" {
			return nil, fmt.Errorf("manifest %s: entry %d has no name", path, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("manifest %s: plugin %q listed twice", path, name)
		}
		seen[name] = true
		entries[i].Name = name
	}
	return &Manifest{Path: path, Plugins: entries}, nil
}

func implicit(path string, catalog []string) *Manifest {
	names := append([]string(nil), catalog...)
	sort.Strings(names)
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n}
	}
	return &Manifest{Path: path, Plugins: entries, Implicit: true}
}

// Enabled returns the names to load, in manifest order.
func (m *Manifest) Enabled() []string {
	var out []string
	for _, e := range m.Plugins {
		if e.On() {
			out = append(out, e.Name)
		}
	}
	return out
}
