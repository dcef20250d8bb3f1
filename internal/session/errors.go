package session

import (
	"errors"
	"fmt"
)

// ErrChallengeOverlap is logged when a second MFA challenge arrives for a
// session that already has one outstanding. The new challenge is dropped.
var ErrChallengeOverlap = errors.New("challenge already outstanding")

// ErrNoChallenge is returned when responses are submitted for a session with
// no outstanding challenge.
var ErrNoChallenge = errors.New("no challenge outstanding")

// ErrDetached is returned by Handle operations after Detach.
var ErrDetached = errors.New("handle detached")

// CreationError means the backend refused or failed to start the session.
// The session record stays absent; the caller must retry explicitly.
type CreationError struct {
	ID  string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create session %s: %v", e.ID, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// WriteError means a single input delivery failed. It is never retried; data
// may already be partially consumed downstream.
type WriteError struct {
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to session %s: %v", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UnsupportedKindError is returned for session kinds that are declared but
// not yet wired to a backend (telnet, serial).
type UnsupportedKindError struct {
	Kind Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("session kind %s not supported yet", e.Kind)
}
