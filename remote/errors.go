package remote

import (
	"errors"
	"fmt"
)

// ErrAccessFault matches every error returned by an Accessor, regardless of
// its cause.
var ErrAccessFault = errors.New("remote: access fault")

// Causes carried by an AccessFault.
var (
	ErrProcessExited = errors.New("process exited")
	ErrUnmapped      = errors.New("address not mapped")
	ErrPermission    = errors.New("permission denied")
	ErrTimeout       = errors.New("access timed out")
	ErrNullPointer   = errors.New("null pointer")
	ErrClosed        = errors.New("accessor closed")
)

// An AccessFault reports a failed read or write of remote memory. It is never
// retried by the accessor.
type AccessFault struct {
	Op     string
	Addr   Address
	Length int
	Err    error
}

func (f *AccessFault) Error() string {
	return fmt.Sprintf("remote: %s of %d bytes at %s: %v",
		f.Op, f.Length, f.Addr, f.Err)
}

// Unwrap returns the cause of the fault.
func (f *AccessFault) Unwrap() error {
	return f.Err
}

// Is makes errors.Is(err, ErrAccessFault) hold for every fault.
func (f *AccessFault) Is(target error) bool {
	return target == ErrAccessFault
}

// NewFault wraps cause in an AccessFault. Accessors implemented outside this
// package should use it so that consumers can classify their errors.
func NewFault(op string, addr Address, length int, cause error) error {
	var fault *AccessFault
	if errors.As(cause, &fault) {
		return cause
	}

	return &AccessFault{Op: op, Addr: addr, Length: length, Err: cause}
}

// IsAccessFault reports whether err is, or wraps, an AccessFault.
func IsAccessFault(err error) bool {
	return errors.Is(err, ErrAccessFault)
}
