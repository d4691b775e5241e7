//go:build !linux

package i2c

import "errors"

var errLockUnsupported = errors.New("lock files are only supported on linux")

type fileLock struct{}

func openLock(string) (*fileLock, error) {
	return nil, errLockUnsupported
}

func (l *fileLock) tryLock() (bool, error) {
	return false, errLockUnsupported
}

func (l *fileLock) unlock() error {
	return errLockUnsupported
}

func (l *fileLock) close() error {
	return nil
}
