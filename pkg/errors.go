package hifi

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound is returned by a MetadataStore when no record exists for a path
var ErrRecordNotFound = errors.New("record not found")

// NotFoundError reports a requested path that does not exist on disk.
// It is fatal to the operation that received it.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// EncodingError reports a path whose bytes cannot be stored as text.
// The entry is skipped until the underlying name changes.
type EncodingError struct {
	Path string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("path %q cannot be encoded in the index", e.Path)
}

// IOReadError reports a file that could not be opened or read while hashing
type IOReadError struct {
	Path string
	Err  error
}

func (e *IOReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *IOReadError) Unwrap() error { return e.Err }

// StoreError reports a persistence failure. The transaction it belongs to was
// rolled back, previously committed state is intact.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid configuration value
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// storeErr wraps err as a StoreError unless it already is one or is a
// record lookup miss
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrRecordNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
