// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sctest drives local test networks of sidechain nodes.

A test typically bootstraps a sidechain against a mainchain node, starts the
configured nodes through a Session, connects them and then relies on the
barriers to wait until the network converged before checking its state:

	b := sctest.NewBootstrapper(&sctest.BootstrapConfig{
		Keys:    tool,
		Genesis: tool,
	})
	info, _, err := b.Bootstrap(ctx, dir, network)
	...
	s := sctest.NewSession(&sctest.SessionConfig{WorkDir: dir})
	defer s.StopAll()
	nodes, err := s.StartAll(2, nil)
	...
	err = s.ConnectNodesBi(nodes, 0, 1)
	...
	err = sctest.SyncBlocks(nodes, nil)

Ports

Every node index maps to a p2p and an API port offset by the process id, so
harness processes running side by side on one host do not collide.

Errors

Every operation returns an Error whose Kind tells timeouts, registry
conflicts, collaborator failures, assertion failures and out of order
bootstrap steps apart.  Collaborator errors wrap the original cause, which
stays reachable with errors.As.
*/
package sctest
