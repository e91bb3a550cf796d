// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"fmt"
)

// ErrorKind identifies a kind of harness error.
type ErrorKind int

// These constants are used to identify a specific Error.
const (
	// ErrTimeout indicates a bounded wait exceeded its deadline.
	ErrTimeout ErrorKind = iota

	// ErrResourceConflict indicates a node index was used in a way that
	// conflicts with the session registry: starting an index that is
	// already running, or addressing an index that is not registered.
	ErrResourceConflict

	// ErrCollaborator indicates an external collaborator (node API,
	// bootstrapping tool, mainchain node, child process) failed or
	// returned malformed data.  The cause is kept unchanged in Err.
	ErrCollaborator

	// ErrAssertion indicates a verification helper found the observed
	// network state differs from the expected one.
	ErrAssertion

	// ErrBootstrapState indicates a bootstrap step was requested out of
	// order, or on a bootstrapper that already ran.
	ErrBootstrapState

	// numErrorKinds is the maximum error kind number used in tests.
	numErrorKinds
)

// Map of ErrorKind values back to their constant names for pretty printing.
var errorKindStrings = map[ErrorKind]string{
	ErrTimeout:          "ErrTimeout",
	ErrResourceConflict: "ErrResourceConflict",
	ErrCollaborator:     "ErrCollaborator",
	ErrAssertion:        "ErrAssertion",
	ErrBootstrapState:   "ErrBootstrapState",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s := errorKindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", int(k))
}

// Error is the error type returned by every harness operation.  Op names
// the operation that failed, for example "syncing blocks" or "stop node2".
type Error struct {
	Kind        ErrorKind
	Op          string
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	s := e.Op
	if e.Description != "" {
		s += ": " + e.Description
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the collaborator error wrapped by e, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// IsErrorKind reports whether err is, or wraps, an Error of the given kind.
// Only the outermost Error of each branch is considered, and every branch of
// a joined error is searched.
func IsErrorKind(err error, kind ErrorKind) bool {
	for err != nil {
		switch e := err.(type) {
		case Error:
			return e.Kind == kind

		case interface{ Unwrap() []error }:
			for _, branch := range e.Unwrap() {
				if IsErrorKind(branch, kind) {
					return true
				}
			}
			return false

		case interface{ Unwrap() error }:
			err = e.Unwrap()

		default:
			return false
		}
	}
	return false
}

func timeoutError(op string) Error {
	return Error{Kind: ErrTimeout, Op: op, Description: "timed out"}
}

func conflictError(op, desc string) Error {
	return Error{Kind: ErrResourceConflict, Op: op, Description: desc}
}

func collaboratorError(op string, err error) Error {
	return Error{Kind: ErrCollaborator, Op: op, Err: err}
}

func assertionError(desc string) Error {
	return Error{Kind: ErrAssertion, Op: "assertion failed", Description: desc}
}

func stateError(op, desc string) Error {
	return Error{Kind: ErrBootstrapState, Op: op, Description: desc}
}
