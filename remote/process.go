package remote

import (
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// DefaultTimeout bounds every OS-level memory call of a Process.
const DefaultTimeout = 250 * time.Millisecond

// A Process accesses the memory of a live process by pid.
//
// Calls are serialized. A call that does not return within the timeout is
// reported as ErrTimeout; the abandoned OS call keeps running in the
// background and its result is dropped.
type Process struct {
	mu      sync.Mutex
	pid     int
	timeout time.Duration
	closed  bool
	alive   func(pid int) bool
}

// ProcessOption configures a Process.
type ProcessOption func(p *Process)

// WithTimeout sets the timeout of each memory call.
func WithTimeout(d time.Duration) ProcessOption {
	return func(p *Process) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// OpenProcess attaches to the process with the given pid. It fails with an
// AccessFault if the process does not exist or the platform has no memory
// API.
func OpenProcess(pid int, opts ...ProcessOption) (*Process, error) {
	p := &Process{
		pid:     pid,
		timeout: DefaultTimeout,
		alive:   pidExists,
	}

	for _, opt := range opts {
		opt(p)
	}

	if !supported {
		return nil, NewFault("attach", 0, 0, errors.ErrUnsupported)
	}

	if !p.alive(pid) {
		return nil, NewFault("attach", 0, 0, ErrProcessExited)
	}

	return p, nil
}

func pidExists(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.pid
}

// Read returns length bytes at addr.
func (p *Process) Read(addr Address, length int) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, length)
	err := p.guard("read", addr, length, func() (int, error) {
		return vmRead(p.pid, buf, addr)
	})
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Write stores data at addr.
func (p *Process) Write(addr Address, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	own := make([]byte, len(data))
	copy(own, data)

	return p.guard("write", addr, len(own), func() (int, error) {
		return vmWrite(p.pid, own, addr)
	})
}

// Close detaches from the process. Later calls fail with ErrClosed.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

type callResult struct {
	n   int
	err error
}

func (p *Process) guard(
	op string,
	addr Address,
	length int,
	call func() (int, error),
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return NewFault(op, addr, length, ErrClosed)
	}

	done := make(chan callResult, 1)
	go func() {
		n, err := call()
		done <- callResult{n: n, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return NewFault(op, addr, length, p.classify(r.err))
		}

		if r.n < length {
			return NewFault(op, addr, length, ErrUnmapped)
		}

		return nil
	case <-timer.C:
		return NewFault(op, addr, length, ErrTimeout)
	}
}

func (p *Process) classify(err error) error {
	cause := classifyErrno(err)
	if cause == ErrProcessExited || p.alive(p.pid) {
		return cause
	}

	return ErrProcessExited
}

var _ Accessor = (*Process)(nil)
