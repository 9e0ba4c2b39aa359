//go:build !linux

package remote

import "errors"

const supported = false

func vmRead(int, []byte, Address) (int, error) {
	return 0, errors.ErrUnsupported
}

func vmWrite(int, []byte, Address) (int, error) {
	return 0, errors.ErrUnsupported
}

func classifyErrno(err error) error {
	return err
}
