package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrInvalidTTL is returned for negative TTLs other than NoExpiration.
	ErrInvalidTTL = errors.New("invalid ttl")
)

// OperationError reports a cache call that was rejected. It only happens
// on programming errors such as empty keys.
type OperationError struct {
	Op  string
	Key string
	Err error
}

func (e *OperationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
