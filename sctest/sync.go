// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/horizenofficial/sctest/scrpc"
)

const (
	// DefaultPollInterval is the delay between two polls of a barrier or
	// readiness probe.
	DefaultPollInterval = time.Second

	// DefaultTimeout bounds every barrier and readiness probe.
	DefaultTimeout = 25 * time.Second
)

// WaitOptions bounds a polling wait.
type WaitOptions struct {
	// PollInterval is the delay between two polls.  Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// Timeout is the maximum time spent waiting.  Zero selects
	// DefaultTimeout.
	Timeout time.Duration
}

// withDefaults returns a copy of o with unset fields defaulted.  It is safe
// to call on a nil receiver.
func (o *WaitOptions) withDefaults() WaitOptions {
	var w WaitOptions
	if o != nil {
		w = *o
	}
	if w.PollInterval == 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.Timeout == 0 {
		w.Timeout = DefaultTimeout
	}
	return w
}

// HeightReporter reports the best block height of a node.
type HeightReporter interface {
	BestHeight(ctx context.Context) (int64, error)
}

// MempoolReporter reports the full records of a node's pending
// transactions.
type MempoolReporter interface {
	AllTransactions(ctx context.Context) ([]json.RawMessage, error)
}

// PeerConnector lists the peers of a node and asks it to connect to new
// ones.
type PeerConnector interface {
	ConnectedPeers(ctx context.Context) ([]json.RawMessage, error)
	Connect(ctx context.Context, host string, port int) error
}

// waitContext returns a context that expires once the timeout of w
// elapsed.
func waitContext(w WaitOptions) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), w.Timeout)
}

// poll calls check every interval until it reports convergence or ctx
// expires.  Every node call made by check is bounded by ctx.  Transient
// node API errors count as not converged yet; any other error aborts the
// wait.  A check that returns after the deadline never counts as converged.
func poll(ctx context.Context, op string, w WaitOptions,
	check func(ctx context.Context) (bool, error)) error {

	for {
		if ctx.Err() != nil {
			return timeoutError(op)
		}

		done, err := check(ctx)
		if ctx.Err() != nil {
			return timeoutError(op)
		}
		switch {
		case err != nil && !scrpc.IsTransient(err):
			return collaboratorError(op, err)

		case err != nil:
			log.Tracef("%s: %v", op, err)

		case done:
			return nil
		}

		select {
		case <-time.After(w.PollInterval):
		case <-ctx.Done():
			return timeoutError(op)
		}
	}
}

// SyncBlocks waits until every connection reports the same best block
// height.
func SyncBlocks[T HeightReporter](conns []T, opts *WaitOptions) error {
	w := opts.withDefaults()
	ctx, cancel := waitContext(w)
	defer cancel()

	return poll(ctx, "syncing blocks", w, func(ctx context.Context) (bool, error) {
		heights := make(map[int64]struct{}, len(conns))
		for _, c := range conns {
			h, err := c.BestHeight(ctx)
			if err != nil {
				return false, err
			}
			heights[h] = struct{}{}
		}
		log.Tracef("Block heights: %v", heights)
		return len(heights) <= 1, nil
	})
}

// SyncMempools waits until every connection holds the same pending
// transactions as the first one.  Collections are compared as multisets of
// full transaction records, ignoring order.  The first connection is queried
// again on every poll since its own pool may still change.
func SyncMempools[T MempoolReporter](conns []T, opts *WaitOptions) error {
	w := opts.withDefaults()
	ctx, cancel := waitContext(w)
	defer cancel()

	return poll(ctx, "syncing mempools", w, func(ctx context.Context) (bool, error) {
		if len(conns) == 0 {
			return true, nil
		}

		ref, err := conns[0].AllTransactions(ctx)
		if err != nil {
			return false, err
		}
		refPool, err := canonicalPool(ref)
		if err != nil {
			return false, err
		}

		for _, c := range conns[1:] {
			txns, err := c.AllTransactions(ctx)
			if err != nil {
				return false, err
			}
			pool, err := canonicalPool(txns)
			if err != nil {
				return false, err
			}
			if !equalPools(refPool, pool) {
				return false, nil
			}
		}
		return true, nil
	})
}

// canonicalPool re-encodes every transaction record with sorted object keys
// so that structurally equal records are equal strings, then sorts them.
func canonicalPool(txns []json.RawMessage) ([]string, error) {
	pool := make([]string, 0, len(txns))
	for _, tx := range txns {
		var v interface{}
		dec := json.NewDecoder(bytes.NewReader(tx))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("malformed transaction record: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		pool = append(pool, string(b))
	}
	sort.Strings(pool)
	return pool, nil
}

func equalPools(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ConnectNodes asks from to connect to node index and waits until its peer
// count grew by exactly one.  The target address is derived with ports.
// The timeout of opts also bounds the initial peer listing and the connect
// request.
func ConnectNodes(from PeerConnector, index int, ports PortAllocator, opts *WaitOptions) error {
	op := fmt.Sprintf("connecting to node%d", index)

	w := opts.withDefaults()
	ctx, cancel := waitContext(w)
	defer cancel()

	peers, err := from.ConnectedPeers(ctx)
	if err != nil {
		return stepError(ctx, op, err)
	}
	before := len(peers)

	log.Infof("Connecting to %s", ports.P2PAddress(index))
	if err := from.Connect(ctx, LocalHost, ports.P2PPort(index)); err != nil {
		return stepError(ctx, op, err)
	}

	return poll(ctx, op, w, func(ctx context.Context) (bool, error) {
		peers, err := from.ConnectedPeers(ctx)
		if err != nil {
			return false, err
		}
		return len(peers) == before+1, nil
	})
}

// stepError classifies the failure of a single bounded node call: it is a
// timeout when ctx expired and a collaborator failure otherwise.
func stepError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return timeoutError(op)
	}
	return collaboratorError(op, err)
}

// ConnectNodesBi connects conns[a] to node b and conns[b] to node a.
func ConnectNodesBi[T PeerConnector](conns []T, a, b int, ports PortAllocator, opts *WaitOptions) error {
	if err := ConnectNodes(conns[a], b, ports, opts); err != nil {
		return err
	}
	return ConnectNodes(conns[b], a, ports, opts)
}

// WaitForNextBlocks waits until conn reports a best block height of at
// least height.
func WaitForNextBlocks(conn HeightReporter, height int64, opts *WaitOptions) error {
	w := opts.withDefaults()
	ctx, cancel := waitContext(w)
	defer cancel()

	return poll(ctx, "waiting blocks", w, func(ctx context.Context) (bool, error) {
		h, err := conn.BestHeight(ctx)
		if err != nil {
			return false, err
		}
		return h >= height, nil
	})
}
