package domain

import "fmt"

// MalformedInputError input resource is not a JSON array of well-formed records.
type MalformedInputError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed input %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// LookupError balance of a single address could not be resolved.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup balance of %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// PersistenceError snapshot could not be written.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
