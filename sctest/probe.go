// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"net"
	"time"
)

// dial opens the probe connection.  Tests replace it to count attempts.
var dial = net.DialTimeout

// AwaitReady waits until a TCP connection can be opened to every address,
// probing them in order.  The timeout of opts bounds the whole probe, not
// each address.  Only socket reachability is checked, not application
// health.
//
// A failed attempt is retried one poll interval later, but only while more
// than a poll interval of the window is left.  Otherwise the probe waits
// out the window and fails, so a timeout of two intervals makes exactly one
// attempt against an address that never listens.
func AwaitReady(addrs []string, opts *WaitOptions) error {
	const op = "node initialization"

	w := opts.withDefaults()
	deadline := time.Now().Add(w.Timeout)
	for _, addr := range addrs {
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return timeoutError(op)
			}

			dialTimeout := w.PollInterval
			if remaining < dialTimeout {
				dialTimeout = remaining
			}
			conn, err := dial("tcp", addr, dialTimeout)
			if err == nil {
				conn.Close()
				log.Debugf("%s accepts connections", addr)
				break
			}
			log.Tracef("%s not ready: %v", addr, err)

			remaining = time.Until(deadline)
			if remaining <= 2*w.PollInterval {
				time.Sleep(remaining)
				return timeoutError(op)
			}
			time.Sleep(w.PollInterval)
		}
	}
	return nil
}
