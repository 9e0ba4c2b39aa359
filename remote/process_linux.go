//go:build linux

package remote

import (
	"errors"

	"golang.org/x/sys/unix"
)

const supported = true

func vmRead(pid int, data []byte, addr Address) (int, error) {
	localIov := []unix.Iovec{
		{
			Base: &data[0],
		},
	}
	localIov[0].SetLen(len(data))

	remoteIov := []unix.RemoteIovec{
		{
			Base: uintptr(addr),
			Len:  len(data),
		},
	}

	return unix.ProcessVMReadv(pid, localIov, remoteIov, 0)
}

func vmWrite(pid int, data []byte, addr Address) (int, error) {
	localIov := []unix.Iovec{
		{
			Base: &data[0],
		},
	}
	localIov[0].SetLen(len(data))

	remoteIov := []unix.RemoteIovec{
		{
			Base: uintptr(addr),
			Len:  len(data),
		},
	}

	return unix.ProcessVMWritev(pid, localIov, remoteIov, 0)
}

func classifyErrno(err error) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return ErrProcessExited
	case errors.Is(err, unix.EFAULT), errors.Is(err, unix.EINVAL):
		return ErrUnmapped
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return ErrPermission
	default:
		return err
	}
}
