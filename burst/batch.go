package burst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/conv"
)

// RegisterRead names one register read of a batch.
type RegisterRead struct {
	Address   int
	Register  int
	ByteCount int
}

// RegisterWrite names one register write of a batch.
type RegisterWrite struct {
	Address   int
	Register  int
	ByteCount int
	Value     uint64
}

const (
	DefaultBatchTries   = 3
	DefaultEntryTries   = 1
	DefaultBatchBackoff = 100 * time.Millisecond
)

type BatchOptions struct {
	MaxTries   int
	EntryTries int
	// Backoff is the pause between runs; the bus is free meanwhile.
	Backoff time.Duration
	Burst   []Option
}

type BatchOption func(*BatchOptions)

// BatchTries bounds how many times the whole batch is run.
func BatchTries(n int) BatchOption {
	return func(o *BatchOptions) {
		o.MaxTries = n
	}
}

// EntryTries bounds the attempts of each entry within one run of the batch.
func EntryTries(n int) BatchOption {
	return func(o *BatchOptions) {
		o.EntryTries = n
	}
}

// BatchBackoff sets the pause before the batch is run again.
func BatchBackoff(d time.Duration) BatchOption {
	return func(o *BatchOptions) {
		o.Backoff = d
	}
}

// WithBurstOptions configures the burst each run of the batch acquires.
func WithBurstOptions(opts ...Option) BatchOption {
	return func(o *BatchOptions) {
		o.Burst = append(o.Burst, opts...)
	}
}

func newBatchOptions(opts []BatchOption) (BatchOptions, error) {
	o := BatchOptions{
		MaxTries:   DefaultBatchTries,
		EntryTries: DefaultEntryTries,
		Backoff:    DefaultBatchBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxTries < 0 || o.EntryTries < 0 {
		return o, fmt.Errorf("%w: max tries can't be negative", i2cburst.ErrValidation)
	}
	if o.Backoff < 0 {
		return o, fmt.Errorf("%w: batch backoff can't be negative", i2cburst.ErrValidation)
	}
	return o, nil
}

func validEntry(address, register, byteCount int) error {
	if err := i2cburst.ValidAddress("device address", address); err != nil {
		return err
	}
	if err := i2cburst.ValidAddress("device register", register); err != nil {
		return err
	}
	return conv.CheckByteCount(byteCount)
}

// ReadDeviceRegisters reads registers on one or more devices while holding
// the bus once, and returns the values in the order of reads.
//
// Every entry is validated before the bus is touched. When an entry fails,
// the lock is released and the whole batch is run again, up to BatchTries
// times.
func ReadDeviceRegisters(ctx context.Context, bus i2cburst.Bus, reads []RegisterRead, opts ...BatchOption) ([]uint64, error) {
	for _, r := range reads {
		if err := validEntry(r.Address, r.Register, r.ByteCount); err != nil {
			return nil, err
		}
	}
	config, err := newBatchOptions(opts)
	if err != nil {
		return nil, err
	}
	if len(reads) == 0 {
		return []uint64{}, nil
	}
	var values []uint64
	err = runBatch(ctx, bus, "read", reads[0].Address, len(reads), config, func(b *Burst) error {
		values = make([]uint64, 0, len(reads))
		for _, r := range reads {
			v, err := b.handle(byte(r.Address)).ReadRegister(ctx, r.Register, ByteCount(r.ByteCount), MaxTries(config.EntryTries))
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// WriteDeviceRegisters writes registers on one or more devices while holding
// the bus once.
//
// A failed run is repeated from the first entry, so writes that already went
// through are applied again. Batches must therefore be safe to replay.
func WriteDeviceRegisters(ctx context.Context, bus i2cburst.Bus, writes []RegisterWrite, opts ...BatchOption) error {
	for _, w := range writes {
		if err := validEntry(w.Address, w.Register, w.ByteCount); err != nil {
			return err
		}
		if w.Value > conv.MaxValue(w.ByteCount) {
			return fmt.Errorf("%w: %d (allowed range: 0 ≤ x ≤ %d)", conv.ErrRange, w.Value, conv.MaxValue(w.ByteCount))
		}
	}
	config, err := newBatchOptions(opts)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	return runBatch(ctx, bus, "write", writes[0].Address, len(writes), config, func(b *Burst) error {
		for _, w := range writes {
			err := b.handle(byte(w.Address)).WriteRegister(ctx, w.Register, w.Value, ByteCount(w.ByteCount), MaxTries(config.EntryTries))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func runBatch(ctx context.Context, bus i2cburst.Bus, op string, address int, size int, config BatchOptions, fn func(b *Burst) error) error {
	var last error
	for try := 1; try <= config.MaxTries; try++ {
		b, err := New(bus, address, config.Burst...)
		if err != nil {
			return err
		}
		err = b.Run(ctx, func(_ *Handle) error {
			return fn(b)
		})
		if err == nil {
			return nil
		}
		// only exhausted entries are worth another run
		if !errors.Is(err, i2cburst.ErrAccessExhausted) {
			return err
		}
		last = err
		if try == config.MaxTries {
			break
		}
		b.log.Debug(fmt.Sprintf("failed to process all %ss, retrying", op), "try", try, "max_tries", config.MaxTries)
		if err := sleep(ctx, config.Backoff); err != nil {
			return fmt.Errorf("batch %s: %w", op, err)
		}
	}
	return &i2cburst.AccessError{
		Op:     "batch " + op,
		Target: fmt.Sprintf("%d registers", size),
		Tries:  config.MaxTries,
		Err:    last,
	}
}

// ReadDeviceRegister reads a single register in its own burst. Use Do or
// ReadDeviceRegisters to read several registers under one lock.
func ReadDeviceRegister(ctx context.Context, bus i2cburst.Bus, address, register int, opts ...AccessOption) (uint64, error) {
	var value uint64
	err := Do(ctx, bus, address, func(h *Handle) error {
		v, err := h.ReadRegister(ctx, register, opts...)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// WriteDeviceRegister writes a single register in its own burst.
func WriteDeviceRegister(ctx context.Context, bus i2cburst.Bus, address, register int, value uint64, opts ...AccessOption) error {
	return Do(ctx, bus, address, func(h *Handle) error {
		return h.WriteRegister(ctx, register, value, opts...)
	})
}
