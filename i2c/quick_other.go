//go:build !linux

package i2c

import "fmt"

type devQuick struct{}

func openQuick(name string) (*devQuick, error) {
	return nil, fmt.Errorf("%w: no raw bus access on this platform", ErrEmptyWriteUnsupported)
}

func (d *devQuick) QuickWrite(uint16) error {
	return ErrEmptyWriteUnsupported
}

func (d *devQuick) Close() error {
	return nil
}
