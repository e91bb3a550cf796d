// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package scrpc implements a client for the HTTP API exposed by a sidechain
node.

Every API method is addressed by a group and a name, for example block/best,
and is invoked with an HTTP POST whose body is a JSON object.  The node
replies with an envelope carrying either a result or an error object:

	{"result": {...}}
	{"error": {"code": "...", "description": "...", "detail": "..."}}

Errors returned by the client fall in two classes.  Failures to reach the
node or 5xx replies are wrapped in a *TransportError and reported as
transient by IsTransient, since a node that is still starting up or busy is
expected to recover.  Error envelopes, unexpected statuses and malformed
replies are permanent and are never reported as transient.

Every call is bound to the context it is given.  A call abandoned because the
context is done fails with a *TransportError wrapping the context error.
*/
package scrpc
