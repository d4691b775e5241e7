package i2cburst

import (
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

var (
	ErrValidation         = errors.New("invalid argument")
	ErrAcquisitionTimeout = errors.New("timed out before the I2C bus became available")
	ErrAccessExhausted    = errors.New("bus access attempts exhausted")
	ErrBurstState         = errors.New("burst is not idle")
)

// AccessError is returned once all attempts of a register, state or batch
// operation failed. It matches ErrAccessExhausted and the last transport error.
type AccessError struct {
	Op     string
	Target string
	Tries  int
	Err    error
}

func (e *AccessError) Error() string {
	msg := fmt.Sprintf("unable to %s %s after %d attempts", e.Op, e.Target, e.Tries)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AccessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAccessExhausted}
	}
	return []error{ErrAccessExhausted, e.Err}
}

// ValidAddress reports an error wrapping ErrValidation when addr is not
// within 0 ≤ addr ≤ 255. Used for both device and register addresses.
func ValidAddress(kind string, addr int) error {
	if addr < 0 || addr > 255 {
		return fmt.Errorf("%w: %s %#x is out of range (allowed range: 0 ≤ x ≤ 255)", ErrValidation, kind, addr)
	}
	return nil
}
