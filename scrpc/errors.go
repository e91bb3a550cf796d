// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scrpc

import (
	"errors"
	"fmt"
)

// TransportError describes a failure to complete an API call which is not
// attributable to the node's application logic: the connection could not be
// established, was dropped, or the node replied with a server error status.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

// Error satisfies the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http status %d: %v", e.Method,
			e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is the error object returned by a node in place of a result.
type APIError struct {
	Method      string `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

// Error satisfies the error interface.
func (e *APIError) Error() string {
	s := fmt.Sprintf("%s: api error %s: %s", e.Method, e.Code,
		e.Description)
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// ErrEmptyResult is returned when the node replied with an envelope that
// carries neither a result nor an error.
var ErrEmptyResult = errors.New("reply carries neither result nor error")

// IsTransient reports whether err is a transport level failure that may go
// away if the call is repeated later.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
