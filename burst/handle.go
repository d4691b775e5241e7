package burst

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/busctx"
	"github.com/mklimuk/i2cburst/conv"
)

// Handle performs register and state accesses on one device while its Burst
// holds the bus. It must not be used after the burst is released.
//
// Accessing a register or the device's internal state differs only in the
// register address byte:
//
//	read from register        write to register
//	1. device address         device address
//	2. register address       register address
//	3. read value bytes       write value bytes
//
// Step 2 is skipped when accessing the internal state.
type Handle struct {
	bus     i2cburst.Bus
	address byte
	burstID string
	config  Options
	log     *slog.Logger
}

// Address returns the device address the handle is bound to.
func (h *Handle) Address() byte {
	return h.address
}

type access struct {
	byteCount int
	maxTries  int
}

type AccessOption func(*access)

// ByteCount sets the width of the value in bytes (default 1).
func ByteCount(n int) AccessOption {
	return func(a *access) {
		a.byteCount = n
	}
}

// MaxTries bounds the number of attempts. Zero makes the call fail without
// touching the bus.
func MaxTries(n int) AccessOption {
	return func(a *access) {
		a.maxTries = n
	}
}

func newAccess(tries int, opts []AccessOption) (access, error) {
	a := access{byteCount: 1, maxTries: tries}
	for _, opt := range opts {
		opt(&a)
	}
	if err := conv.CheckByteCount(a.byteCount); err != nil {
		return a, err
	}
	if a.maxTries < 0 {
		return a, fmt.Errorf("%w: max tries %d can't be negative", i2cburst.ErrValidation, a.maxTries)
	}
	return a, nil
}

// ReadRegister reads the big-endian value of register.
func (h *Handle) ReadRegister(ctx context.Context, register int, opts ...AccessOption) (uint64, error) {
	if err := i2cburst.ValidAddress("device register", register); err != nil {
		return 0, err
	}
	a, err := newAccess(h.config.ReadTries, opts)
	if err != nil {
		return 0, err
	}
	out := []byte{byte(register)}
	in := make([]byte, a.byteCount)
	var value uint64
	err = h.retry(ctx, "read", fmt.Sprintf("register 0x%02X", register), a.maxTries, h.config.ReadBackoff, func(ctx context.Context) error {
		if err := h.bus.WriteThenReadFrom(ctx, h.address, out, in); err != nil {
			return err
		}
		v, err := conv.Decode(in)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// WriteRegister writes value to register. A value wider than the byte count
// is rejected before the bus is touched.
func (h *Handle) WriteRegister(ctx context.Context, register int, value uint64, opts ...AccessOption) error {
	if err := i2cburst.ValidAddress("device register", register); err != nil {
		return err
	}
	a, err := newAccess(h.config.WriteTries, opts)
	if err != nil {
		return err
	}
	enc, err := conv.Encode(value, a.byteCount)
	if err != nil {
		return err
	}
	buf := append([]byte{byte(register)}, enc...)
	return h.retry(ctx, "write", fmt.Sprintf("register 0x%02X", register), a.maxTries, h.config.WriteBackoff, func(ctx context.Context) error {
		return h.bus.WriteTo(ctx, h.address, buf)
	})
}

// GetState reads the device's internal state.
func (h *Handle) GetState(ctx context.Context, opts ...AccessOption) (uint64, error) {
	a, err := newAccess(h.config.ReadTries, opts)
	if err != nil {
		return 0, err
	}
	in := make([]byte, a.byteCount)
	var value uint64
	err = h.retry(ctx, "read", "state", a.maxTries, h.config.ReadBackoff, func(ctx context.Context) error {
		if err := h.bus.WriteThenReadFrom(ctx, h.address, nil, in); err != nil {
			return err
		}
		v, err := conv.Decode(in)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// SetState replaces the device's internal state.
func (h *Handle) SetState(ctx context.Context, value uint64, opts ...AccessOption) error {
	a, err := newAccess(h.config.WriteTries, opts)
	if err != nil {
		return err
	}
	buf, err := conv.Encode(value, a.byteCount)
	if err != nil {
		return err
	}
	return h.retry(ctx, "write", "state", a.maxTries, h.config.WriteBackoff, func(ctx context.Context) error {
		return h.bus.WriteTo(ctx, h.address, buf)
	})
}

// Probe addresses the device with an empty write. Sensors such as the
// HIH6021 start a measurement on it; on others it only checks for an ACK.
// Unlike the other accesses it makes a single attempt unless MaxTries says
// otherwise. ByteCount is ignored.
func (h *Handle) Probe(ctx context.Context, opts ...AccessOption) error {
	a, err := newAccess(1, opts)
	if err != nil {
		return err
	}
	return h.retry(ctx, "probe", "device", a.maxTries, h.config.WriteBackoff, func(ctx context.Context) error {
		return h.bus.WriteTo(ctx, h.address, []byte{})
	})
}

// retry calls fn up to tries times. Transport errors are logged and retried
// after backoff; context errors end the loop at once.
func (h *Handle) retry(ctx context.Context, op, target string, tries int, backoff time.Duration, fn func(ctx context.Context) error) error {
	txCtx := busctx.WithBurstID(ctx, h.burstID)
	var last error
	for try := 1; try <= tries; try++ {
		err := fn(txCtx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", op, target, ctxErr)
		}
		last = err
		h.log.Warn(fmt.Sprintf("failed to %s %s", op, target), "try", try, "max_tries", tries, "error", err)
		if try == tries {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%s %s: %w", op, target, err)
		}
	}
	aerr := &i2cburst.AccessError{Op: op, Target: target, Tries: tries, Err: last}
	h.log.Error("giving up", "error", aerr)
	return aerr
}
