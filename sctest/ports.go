// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"net"
	"os"
	"strconv"
)

const (
	// BaseP2PPort and BaseRPCPort are the first ports of the p2p and API
	// port bands.  A node index is added to them, together with an
	// offset derived from the process id.
	BaseP2PPort = 8300
	BaseRPCPort = 8200

	// pidModulus bounds the per-process offset.  Two processes whose ids
	// are congruent modulo pidModulus share a band and may collide.
	pidModulus = 999

	// LocalHost is the address every node binds and is reached on.
	LocalHost = "127.0.0.1"
)

// PortAssignment is the pair of ports used by one node.
type PortAssignment struct {
	P2P int
	RPC int
}

// PortAllocator derives node ports from a node index and a process id.  The
// mapping from index to port is injective for each port kind, so nodes in a
// single process never share a port, while concurrent processes on one host
// claim separate bands without coordination.
//
// Indices of 100 or more make the API band overlap the p2p band of lower
// indices.
type PortAllocator struct {
	PID int
}

// NewPortAllocator returns an allocator for the current process.
func NewPortAllocator() PortAllocator {
	return PortAllocator{PID: os.Getpid()}
}

func (a PortAllocator) offset() int {
	return a.PID % pidModulus
}

// P2PPort returns the p2p port of node n.
func (a PortAllocator) P2PPort(n int) int {
	return BaseP2PPort + n + a.offset()
}

// RPCPort returns the API port of node n.
func (a PortAllocator) RPCPort(n int) int {
	return BaseRPCPort + n + a.offset()
}

// Assignment returns both ports of node n.
func (a PortAllocator) Assignment(n int) PortAssignment {
	return PortAssignment{P2P: a.P2PPort(n), RPC: a.RPCPort(n)}
}

// P2PAddress returns the local p2p address of node n.
func (a PortAllocator) P2PAddress(n int) string {
	return net.JoinHostPort(LocalHost, strconv.Itoa(a.P2PPort(n)))
}

// RPCAddress returns the local API address of node n.
func (a PortAllocator) RPCAddress(n int) string {
	return net.JoinHostPort(LocalHost, strconv.Itoa(a.RPCPort(n)))
}

// P2PPort returns the p2p port of node n for the current process.
func P2PPort(n int) int {
	return NewPortAllocator().P2PPort(n)
}

// RPCPort returns the API port of node n for the current process.
func RPCPort(n int) int {
	return NewPortAllocator().RPCPort(n)
}
