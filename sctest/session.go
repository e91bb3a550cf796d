// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/horizenofficial/sctest/scconf"
	"github.com/horizenofficial/sctest/scrpc"
	"github.com/kballard/go-shellquote"
)

// DefaultBinary is the node command line used when NodeOptions.Binary is
// empty.  The configuration file path is appended to it.
var DefaultBinary = "java -cp " +
	"../examples/simpleapp/target/Sidechains-SDK-simpleapp-0.1-SNAPSHOT.jar" +
	string(filepath.ListSeparator) + "../examples/simpleapp/target/lib/* " +
	"com.horizen.examples.SimpleApp"

// pidFileName is written in every node directory while the node runs.
const pidFileName = "scnode.pid"

// NodeOptions configures how one node is launched.
type NodeOptions struct {
	// Binary is the command line starting the node, split into words
	// with POSIX shell quoting rules.  Defaults to DefaultBinary.
	Binary string

	// ExtraArgs are placed between Binary and the configuration file
	// path.  Defaults to none.
	ExtraArgs []string

	// RPCUser and RPCPass authenticate the returned API client.  They
	// default to scrpc.DefaultUser and scrpc.DefaultPass.
	RPCUser string
	RPCPass string

	// Stdout and Stderr receive the node output.  Defaults to discarding
	// it.
	Stdout io.Writer
	Stderr io.Writer
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// WorkDir holds one sc_node<n> directory per node.  Required.
	WorkDir string

	// Launcher starts node processes.  Defaults to ExecLauncher.
	Launcher Launcher

	// Ports derives node ports.  Defaults to NewPortAllocator().
	Ports *PortAllocator

	// Wait bounds readiness probes, process exits and barriers started
	// through the session.  Nil fields select DefaultPollInterval and
	// DefaultTimeout.
	Wait *WaitOptions
}

// NodeProcess is a node registered in a Session.
type NodeProcess struct {
	Index      int
	Process    Process
	ConfigPath string
	URL        string

	pidFile string
}

// cleanup removes the pid file of the node.
func (n *NodeProcess) cleanup() {
	if n.pidFile == "" {
		return
	}
	if err := os.Remove(n.pidFile); err != nil && !os.IsNotExist(err) {
		log.Warnf("Unable to remove file %s: %v", n.pidFile, err)
	}
}

// NodeStatus is the liveness of a registered node.
type NodeStatus struct {
	Running  bool
	ExitCode int
}

// Session owns the node processes of one test network.  Nodes are
// registered by Start and removed by Stop, StopAll and AwaitAllExit; a
// session must be drained before it is discarded or child processes leak.
//
// NOTE: A Session is not safe for concurrent access.  It must be driven from
// the goroutine orchestrating the test.
type Session struct {
	workDir  string
	launcher Launcher
	ports    PortAllocator
	wait     WaitOptions

	nodes map[int]*NodeProcess
}

// NewSession returns an empty session.
func NewSession(cfg *SessionConfig) *Session {
	s := &Session{
		workDir:  cfg.WorkDir,
		launcher: cfg.Launcher,
		wait:     cfg.Wait.withDefaults(),
		nodes:    make(map[int]*NodeProcess),
	}
	if s.launcher == nil {
		s.launcher = ExecLauncher{}
	}
	if cfg.Ports != nil {
		s.ports = *cfg.Ports
	} else {
		s.ports = NewPortAllocator()
	}
	return s
}

// WorkDir returns the session working directory.
func (s *Session) WorkDir() string {
	return s.workDir
}

// Ports returns the port allocator of the session.
func (s *Session) Ports() PortAllocator {
	return s.ports
}

// Len returns the number of registered nodes.
func (s *Session) Len() int {
	return len(s.nodes)
}

// Nodes returns the registered node indices in ascending order.
func (s *Session) Nodes() []int {
	indices := make([]int, 0, len(s.nodes))
	for i := range s.nodes {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Node returns the registered node with the given index.
func (s *Session) Node(index int) (*NodeProcess, bool) {
	n, ok := s.nodes[index]
	return n, ok
}

// Start launches node index with its configuration file and returns an API
// client for it.  It does not wait for the node to accept connections.
func (s *Session) Start(index int, opts *NodeOptions) (*scrpc.Client, error) {
	op := fmt.Sprintf("start node%d", index)
	if _, ok := s.nodes[index]; ok {
		return nil, conflictError(op, "node is already running")
	}
	if opts == nil {
		opts = &NodeOptions{}
	}

	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	args, err := shellquote.Split(binary)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid binary %q: %w", op, binary, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: empty binary", op)
	}

	nodeDir := scconf.NodeDir(s.workDir, index)
	configPath := scconf.ConfigPath(s.workDir, index)
	args = append(args, opts.ExtraArgs...)
	args = append(args, configPath)

	if err := os.MkdirAll(nodeDir, 0700); err != nil {
		return nil, err
	}

	proc, err := s.launcher.Launch(&LaunchRequest{
		Args:   args,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	})
	if err != nil {
		return nil, collaboratorError(op, err)
	}

	client := scrpc.New(&scrpc.Config{
		Host: s.ports.RPCAddress(index),
		User: opts.RPCUser,
		Pass: opts.RPCPass,
	})
	node := &NodeProcess{
		Index:      index,
		Process:    proc,
		ConfigPath: configPath,
		URL:        client.URL(),
	}
	s.nodes[index] = node

	pidFile := filepath.Join(nodeDir, pidFileName)
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", proc.Pid())), 0600); err != nil {
		log.Warnf("Unable to write pid file %s: %v", pidFile, err)
	} else {
		node.pidFile = pidFile
	}

	log.Infof("Started node%d (pid %d) with API at %s", index, proc.Pid(),
		node.URL)

	return client, nil
}

// StartAll starts nodes 0 to n-1 in index order and waits until every one
// accepts API connections.  opts may be nil or hold one entry per node.
//
// When a start fails the batch is aborted and the nodes already started
// stay registered; the caller is responsible for tearing them down.
func (s *Session) StartAll(n int, opts []*NodeOptions) ([]*scrpc.Client, error) {
	if opts != nil && len(opts) != n {
		return nil, fmt.Errorf("start nodes: %d options given for %d nodes",
			len(opts), n)
	}

	clients := make([]*scrpc.Client, 0, n)
	for i := 0; i < n; i++ {
		var o *NodeOptions
		if opts != nil {
			o = opts[i]
		}
		c, err := s.Start(i, o)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	if err := s.AwaitReady(n); err != nil {
		return nil, err
	}
	return clients, nil
}

// AwaitReady waits until nodes 0 to n-1 accept connections on their API
// ports.
func (s *Session) AwaitReady(n int) error {
	addrs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, s.ports.RPCAddress(i))
	}
	return AwaitReady(addrs, &s.wait)
}

// CheckAlive polls the exit status of node index without blocking.
func (s *Session) CheckAlive(index int) (NodeStatus, error) {
	node, ok := s.nodes[index]
	if !ok {
		return NodeStatus{}, conflictError(fmt.Sprintf("check node%d", index),
			"node is not registered")
	}

	exited, code := node.Process.Exited()
	if !exited {
		return NodeStatus{Running: true}, nil
	}
	return NodeStatus{ExitCode: code}, nil
}

// Stop kills node index, waits for the process to be gone and removes it
// from the session.  Stopping an index that is not registered, including
// one already stopped, is an ErrResourceConflict.  A node that cannot be
// killed or does not exit within the session wait timeout stays registered.
func (s *Session) Stop(index int) error {
	op := fmt.Sprintf("stop node%d", index)
	node, ok := s.nodes[index]
	if !ok {
		return conflictError(op, "node is not registered")
	}

	if err := node.Process.Kill(); err != nil {
		return collaboratorError(op, err)
	}

	select {
	case <-node.Process.Done():
	case <-time.After(s.wait.Timeout):
		return timeoutError(op)
	}

	delete(s.nodes, index)
	node.cleanup()
	log.Infof("Stopped node%d", index)
	return nil
}

// StopAll kills every registered node and removes the ones that exited from
// the session.  Every node is signalled even when killing another one fails.
// Nodes still running once the session wait timeout elapsed stay
// registered, and the timeout is reported together with any kill failure.
func (s *Session) StopAll() error {
	const op = "stop nodes"

	var errs []error
	nodes := s.Nodes()
	for _, i := range nodes {
		if err := s.nodes[i].Process.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("node%d: %w", i, err))
		}
	}

	timeout := time.NewTimer(s.wait.Timeout)
	defer timeout.Stop()

	timedOut := false
	for _, i := range nodes {
		node := s.nodes[i]
		if !timedOut {
			select {
			case <-node.Process.Done():
			case <-timeout.C:
				timedOut = true
			}
		}
		if timedOut {
			select {
			case <-node.Process.Done():
			default:
				continue
			}
		}

		node.cleanup()
		delete(s.nodes, i)
	}

	var killErr error
	if len(errs) != 0 {
		killErr = collaboratorError(op, errors.Join(errs...))
	}
	if timedOut {
		log.Warnf("Nodes still running after %v: %v", s.wait.Timeout,
			s.Nodes())
		return errors.Join(timeoutError(op), killErr)
	}
	if killErr != nil {
		return killErr
	}
	log.Debugf("Stopped %d nodes", len(nodes))
	return nil
}

// AwaitAllExit blocks until every registered node exited on its own, then
// clears the session.  Nodes that exited with a non-zero status are reported
// in the returned error.  When timeout elapses first the session is left
// untouched and an ErrTimeout is returned.  A zero timeout selects the
// session wait timeout.
func (s *Session) AwaitAllExit(timeout time.Duration) error {
	const op = "waiting for nodes to exit"
	if timeout == 0 {
		timeout = s.wait.Timeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	nodes := s.Nodes()
	for _, i := range nodes {
		select {
		case <-s.nodes[i].Process.Done():
		case <-deadline.C:
			return timeoutError(op)
		}
	}

	var errs []error
	for _, i := range nodes {
		node := s.nodes[i]
		if _, code := node.Process.Exited(); code != 0 {
			errs = append(errs, fmt.Errorf("node%d exited with status %d",
				i, code))
		}
		node.cleanup()
		delete(s.nodes, i)
	}

	if len(errs) != 0 {
		return collaboratorError(op, errors.Join(errs...))
	}
	return nil
}

// ConnectNodes connects the node behind from to node index of this session
// and waits for the new peer to show up.
func (s *Session) ConnectNodes(from PeerConnector, index int) error {
	return ConnectNodes(from, index, s.ports, &s.wait)
}

// ConnectNodesBi connects nodes a and b of clients in both directions.
func (s *Session) ConnectNodesBi(clients []*scrpc.Client, a, b int) error {
	return ConnectNodesBi(clients, a, b, s.ports, &s.wait)
}
