// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/horizenofficial/sctest/scconf"
	"github.com/stretchr/testify/require"
)

// fakeProcess is a Process whose exit is driven by the test.  A process
// with survive set keeps running when killed.
type fakeProcess struct {
	pid     int
	killErr error
	survive bool
	done    chan struct{}

	mtx    sync.Mutex
	killed bool
	exited bool
	code   int
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

func (p *fakeProcess) wasKilled() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.killed
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Kill() error {
	p.mtx.Lock()
	p.killed = true
	p.mtx.Unlock()
	if !p.survive {
		p.exit(-1)
	}
	return p.killErr
}

func (p *fakeProcess) Exited() (bool, int) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.exited, p.code
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Wait() error {
	<-p.done
	if _, code := p.Exited(); code != 0 {
		return errors.New("exit status " + strconv.Itoa(code))
	}
	return nil
}

// fakeLauncher records launch requests and hands out fake processes.
type fakeLauncher struct {
	err       error
	requests  []*LaunchRequest
	processes []*fakeProcess
}

func (l *fakeLauncher) Launch(req *LaunchRequest) (Process, error) {
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.processes))
	l.requests = append(l.requests, req)
	l.processes = append(l.processes, p)
	return p, nil
}

var testWait = &WaitOptions{
	PollInterval: 5 * time.Millisecond,
	Timeout:      200 * time.Millisecond,
}

func newTestSession(t *testing.T, l Launcher) *Session {
	t.Helper()
	return NewSession(&SessionConfig{
		WorkDir:  t.TempDir(),
		Launcher: l,
		Ports:    &PortAllocator{PID: 4242},
		Wait:     testWait,
	})
}

func TestSessionStart(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	c, err := s.Start(1, &NodeOptions{
		Binary:    `/opt/node "with space" -Xmx1g`,
		ExtraArgs: []string{"-debug"},
	})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:"+strconv.Itoa(s.Ports().RPCPort(1)), c.Host())

	configPath := scconf.ConfigPath(s.WorkDir(), 1)
	require.Len(t, l.requests, 1)
	require.Equal(t, []string{"/opt/node", "with space", "-Xmx1g", "-debug",
		configPath}, l.requests[0].Args)

	node, ok := s.Node(1)
	require.True(t, ok)
	require.Equal(t, configPath, node.ConfigPath)
	require.Equal(t, c.URL(), node.URL)
	require.Equal(t, []int{1}, s.Nodes())

	pid, err := os.ReadFile(filepath.Join(scconf.NodeDir(s.WorkDir(), 1), pidFileName))
	require.NoError(t, err)
	require.Equal(t, "1000\n", string(pid))
}

func TestSessionStartDefaultBinary(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	_, err := s.Start(0, nil)
	require.NoError(t, err)
	require.Equal(t, "java", l.requests[0].Args[0])
	require.Equal(t, "com.horizen.examples.SimpleApp", l.requests[0].Args[3])
	require.Equal(t, scconf.ConfigPath(s.WorkDir(), 0), l.requests[0].Args[4])
}

func TestSessionStartConflict(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	_, err := s.Start(0, nil)
	require.NoError(t, err)

	_, err = s.Start(0, nil)
	require.True(t, IsErrorKind(err, ErrResourceConflict), err)
	require.Len(t, l.requests, 1)
	require.Equal(t, 1, s.Len())
}

func TestSessionStartFailures(t *testing.T) {
	s := newTestSession(t, &fakeLauncher{})
	_, err := s.Start(0, &NodeOptions{Binary: `java "unterminated`})
	require.Error(t, err)
	require.Zero(t, s.Len())

	cause := errors.New("no such file")
	s = newTestSession(t, &fakeLauncher{err: cause})
	_, err = s.Start(0, nil)
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	require.ErrorIs(t, err, cause)
	require.Zero(t, s.Len())
}

func TestSessionCheckAlive(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	_, err := s.Start(0, nil)
	require.NoError(t, err)

	status, err := s.CheckAlive(0)
	require.NoError(t, err)
	require.Equal(t, NodeStatus{Running: true}, status)

	l.processes[0].exit(3)
	status, err = s.CheckAlive(0)
	require.NoError(t, err)
	require.Equal(t, NodeStatus{ExitCode: 3}, status)

	_, err = s.CheckAlive(7)
	require.True(t, IsErrorKind(err, ErrResourceConflict), err)
}

func TestSessionStop(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	_, err := s.Start(0, nil)
	require.NoError(t, err)
	_, err = s.Start(1, nil)
	require.NoError(t, err)

	require.NoError(t, s.Stop(0))
	require.True(t, l.processes[0].wasKilled())
	require.False(t, l.processes[1].wasKilled())
	require.Equal(t, []int{1}, s.Nodes())
	require.NoFileExists(t, filepath.Join(scconf.NodeDir(s.WorkDir(), 0), pidFileName))

	err = s.Stop(0)
	require.True(t, IsErrorKind(err, ErrResourceConflict), err)
}

func TestSessionStopAll(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	for i := 0; i < 3; i++ {
		_, err := s.Start(i, nil)
		require.NoError(t, err)
	}
	l.processes[1].killErr = errors.New("operation not permitted")

	err := s.StopAll()
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	for i, p := range l.processes {
		require.True(t, p.wasKilled(), "node%d not signalled", i)
	}
	require.Zero(t, s.Len())

	require.NoError(t, s.StopAll())
}

func TestSessionStopSurvivor(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	_, err := s.Start(0, nil)
	require.NoError(t, err)
	l.processes[0].survive = true
	pidFile := filepath.Join(scconf.NodeDir(s.WorkDir(), 0), pidFileName)

	err = s.Stop(0)
	require.True(t, IsErrorKind(err, ErrTimeout), err)
	require.Equal(t, []int{0}, s.Nodes())
	require.FileExists(t, pidFile)

	l.processes[0].killErr = errors.New("operation not permitted")
	err = s.Stop(0)
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	require.Equal(t, []int{0}, s.Nodes())

	l.processes[0].killErr = nil
	l.processes[0].exit(-1)
	require.NoError(t, s.Stop(0))
	require.Zero(t, s.Len())
	require.NoFileExists(t, pidFile)
}

func TestSessionStopAllSurvivor(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	for i := 0; i < 3; i++ {
		_, err := s.Start(i, nil)
		require.NoError(t, err)
	}
	l.processes[1].killErr = errors.New("operation not permitted")
	l.processes[1].survive = true

	err := s.StopAll()
	require.True(t, IsErrorKind(err, ErrTimeout), err)
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	require.Contains(t, err.Error(), "operation not permitted")
	require.Equal(t, []int{1}, s.Nodes())
	require.FileExists(t, filepath.Join(scconf.NodeDir(s.WorkDir(), 1), pidFileName))
	require.NoFileExists(t, filepath.Join(scconf.NodeDir(s.WorkDir(), 0), pidFileName))

	l.processes[1].killErr = nil
	l.processes[1].survive = false
	require.NoError(t, s.StopAll())
	require.Zero(t, s.Len())
}

func TestSessionAwaitAllExit(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	for i := 0; i < 2; i++ {
		_, err := s.Start(i, nil)
		require.NoError(t, err)
	}

	l.processes[0].exit(0)
	err := s.AwaitAllExit(20 * time.Millisecond)
	require.True(t, IsErrorKind(err, ErrTimeout), err)
	require.Equal(t, 2, s.Len())

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.processes[1].exit(0)
	}()
	require.NoError(t, s.AwaitAllExit(time.Second))
	require.Zero(t, s.Len())
}

func TestSessionAwaitAllExitFailure(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSession(t, l)

	for i := 0; i < 2; i++ {
		_, err := s.Start(i, nil)
		require.NoError(t, err)
	}
	l.processes[0].exit(0)
	l.processes[1].exit(2)

	err := s.AwaitAllExit(time.Second)
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	require.Contains(t, err.Error(), "node1 exited with status 2")
	require.Zero(t, s.Len())
}

// listenBand opens listeners on the API ports of nodes 0 to n-1 for some
// allocator and returns it.
func listenBand(t *testing.T, n int) PortAllocator {
	t.Helper()

next:
	for pid := 0; pid < pidModulus; pid++ {
		a := PortAllocator{PID: pid}
		var listeners []net.Listener
		for i := 0; i < n; i++ {
			l, err := net.Listen("tcp", a.RPCAddress(i))
			if err != nil {
				for _, l := range listeners {
					l.Close()
				}
				continue next
			}
			listeners = append(listeners, l)
		}
		t.Cleanup(func() {
			for _, l := range listeners {
				l.Close()
			}
		})
		return a
	}
	t.Skip("no free port band")
	return PortAllocator{}
}

func TestSessionStartAll(t *testing.T) {
	ports := listenBand(t, 2)
	l := &fakeLauncher{}
	s := NewSession(&SessionConfig{
		WorkDir:  t.TempDir(),
		Launcher: l,
		Ports:    &ports,
		Wait:     testWait,
	})

	clients, err := s.StartAll(2, nil)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.Equal(t, ports.RPCAddress(1), clients[1].Host())
	require.Equal(t, []int{0, 1}, s.Nodes())

	_, err = s.StartAll(3, []*NodeOptions{nil})
	require.Error(t, err)
}

func TestExecLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	p, err := ExecLauncher{}.Launch(&LaunchRequest{Args: []string{"sh", "-c", "exit 3"}})
	require.NoError(t, err)
	require.Error(t, p.Wait())
	exited, code := p.Exited()
	require.True(t, exited)
	require.Equal(t, 3, code)
	require.NoError(t, p.Kill())

	p, err = ExecLauncher{}.Launch(&LaunchRequest{Args: []string{"sleep", "30"}})
	require.NoError(t, err)
	exited, _ = p.Exited()
	require.False(t, exited)

	require.NoError(t, p.Kill())
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("killed process not reaped")
	}
	exited, code = p.Exited()
	require.True(t, exited)
	require.Equal(t, -1, code)

	_, err = ExecLauncher{}.Launch(&LaunchRequest{})
	require.Error(t, err)
}

func TestSessionExecNodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	s := NewSession(&SessionConfig{
		WorkDir: t.TempDir(),
		Ports:   &PortAllocator{PID: 4242},
		Wait:    &WaitOptions{Timeout: 5 * time.Second},
	})

	_, err := s.Start(0, &NodeOptions{Binary: `sh -c 'exit 0'`})
	require.NoError(t, err)
	_, err = s.Start(1, &NodeOptions{Binary: `sh -c 'exit 5'`})
	require.NoError(t, err)

	err = s.AwaitAllExit(0)
	require.True(t, IsErrorKind(err, ErrCollaborator), err)
	require.Contains(t, err.Error(), "node1 exited with status 5")
	require.Zero(t, s.Len())

	_, err = s.Start(0, &NodeOptions{Binary: "sleep 30"})
	require.NoError(t, err)
	require.NoError(t, s.StopAll())
	require.Zero(t, s.Len())
}
