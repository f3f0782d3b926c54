package plugin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("plugin not found")
	ErrAlreadyLoaded = errors.New("plugin is already loaded")
	ErrNotActive     = errors.New("plugin is not active")
	ErrHasDependents = errors.New("plugin has active dependents")
	ErrInvalidPlugin = errors.New("invalid plugin")
	ErrUnmetDeps     = errors.New("unmet plugin dependencies")
	ErrLoad          = errors.New("plugin load failed")
)

// UnmetDependencyError lists dependencies that are not active.
type UnmetDependencyError struct {
	Plugin  string
	Missing []string
}

func (e *UnmetDependencyError) Error() string {
	return fmt.Sprintf("plugin %q: dependencies not active: %s", e.Plugin, strings.Join(e.Missing, ", "))
}

func (e *UnmetDependencyError) Is(target error) bool { return target == ErrUnmetDeps }

// LoadError wraps a failure of Initialize or of registering the plugin's
// commands and hooks.
type LoadError struct {
	Plugin string
	Stage  string // "source", "initialize" or "register"
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin %q: %s: %v", e.Plugin, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// PanicError is recorded when plugin code panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin panicked: %v", e.Value)
}
