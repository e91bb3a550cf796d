// Copyright (c) 2019 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sctest

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Process is a handle to one launched node process.
type Process interface {
	// Pid returns the operating system process id.
	Pid() int

	// Kill forcibly terminates the process.  Killing a process that
	// already exited is not an error.
	Kill() error

	// Exited reports, without blocking, whether the process exited and
	// with which exit code.  A process terminated by a signal reports
	// exit code -1.
	Exited() (bool, int)

	// Done returns a channel closed once the process exited.
	Done() <-chan struct{}

	// Wait blocks until the process exited.  It returns nil only for a
	// clean exit with status zero.
	Wait() error
}

// LaunchRequest describes a process to start.
type LaunchRequest struct {
	// Args holds the executable followed by its arguments.
	Args []string

	// Dir is the working directory of the process.  Empty selects the
	// working directory of the harness.
	Dir string

	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts node processes.
type Launcher interface {
	Launch(req *LaunchRequest) (Process, error)
}

// ExecLauncher launches real child processes with os/exec.
type ExecLauncher struct{}

// Launch starts the process described by req.  A goroutine reaps the child
// as soon as it exits so Exited never blocks and no zombie is left behind.
func (ExecLauncher) Launch(req *LaunchRequest) (Process, error) {
	if len(req.Args) == 0 {
		return nil, errors.New("empty command line")
	}

	cmd := exec.Command(req.Args[0], req.Args[1:]...)
	cmd.Dir = req.Dir
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	log.Debugf("Running %s", strings.Join(cmd.Args, " "))

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// execProcess implements Process for an exec.Cmd.
type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mtx      sync.Mutex
	exited   bool
	exitCode int
	err      error
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()

	p.mtx.Lock()
	p.exited = true
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.err = err
	p.mtx.Unlock()

	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Exited() (bool, int) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.exited, p.exitCode
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Wait() error {
	<-p.done

	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.err
}
