// Package burst gives exclusive, retry tolerant access to devices sharing
// an I2C bus.
//
// A Burst acquires the bus lock, hands out a Handle bound to one device
// address and releases the lock when the caller is done:
//
//	err := burst.Do(ctx, bus, 0x4C, func(h *burst.Handle) error {
//		v, err := h.ReadRegister(ctx, 0x00)
//		if err != nil {
//			return err
//		}
//		return h.WriteRegister(ctx, 0x01, v+1)
//	})
//
// Devices exposing a single state word (muxes, switches) are accessed with
// GetState and SetState instead.
package burst

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mklimuk/i2cburst"
)

const (
	DefaultTimeout      = 500 * time.Millisecond
	DefaultPollInterval = time.Millisecond
	DefaultReadTries    = 5
	DefaultWriteTries   = 3
	DefaultReadBackoff  = time.Millisecond
	DefaultWriteBackoff = 100 * time.Millisecond
)

type Options struct {
	// Timeout bounds lock acquisition. Ignored when NoTimeout is set.
	Timeout      time.Duration
	NoTimeout    bool
	PollInterval time.Duration
	ReadTries    int
	WriteTries   int
	ReadBackoff  time.Duration
	WriteBackoff time.Duration
	Logger       *slog.Logger
}

type Option func(*Options)

// WithTimeout bounds lock acquisition; d must be positive.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
		o.NoTimeout = false
	}
}

// WithoutTimeout waits for the bus for as long as the context allows.
func WithoutTimeout() Option {
	return func(o *Options) {
		o.NoTimeout = true
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollInterval = d
	}
}

// WithReadTries sets the default attempt bound of reads made through the handle.
func WithReadTries(n int) Option {
	return func(o *Options) {
		o.ReadTries = n
	}
}

// WithWriteTries sets the default attempt bound of writes made through the handle.
func WithWriteTries(n int) Option {
	return func(o *Options) {
		o.WriteTries = n
	}
}

// WithBackoff sets the pause between failed attempts of both reads and writes.
func WithBackoff(d time.Duration) Option {
	return func(o *Options) {
		o.ReadBackoff = d
		o.WriteBackoff = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func newOptions(opts []Option) (Options, error) {
	o := Options{
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		ReadTries:    DefaultReadTries,
		WriteTries:   DefaultWriteTries,
		ReadBackoff:  DefaultReadBackoff,
		WriteBackoff: DefaultWriteBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	switch {
	case !o.NoTimeout && o.Timeout <= 0:
		return o, fmt.Errorf("%w: timeout must be positive or disabled (got %s)", i2cburst.ErrValidation, o.Timeout)
	case o.PollInterval <= 0:
		return o, fmt.Errorf("%w: poll interval must be positive (got %s)", i2cburst.ErrValidation, o.PollInterval)
	case o.ReadTries < 0 || o.WriteTries < 0:
		return o, fmt.Errorf("%w: max tries can't be negative", i2cburst.ErrValidation)
	case o.ReadBackoff < 0 || o.WriteBackoff < 0:
		return o, fmt.Errorf("%w: backoff can't be negative", i2cburst.ErrValidation)
	}
	return o, nil
}

type state int

const (
	stateIdle state = iota
	stateAcquiring
	stateHeld
	stateReleased
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAcquiring:
		return "acquiring"
	case stateHeld:
		return "held"
	case stateReleased:
		return "released"
	default:
		return "failed"
	}
}

// Burst is a single exclusive access to the bus. It moves from idle through
// acquiring to held and ends released (or failed when the lock could not be
// taken). A Burst is not reusable and not safe for concurrent use.
type Burst struct {
	bus     i2cburst.Bus
	address byte
	config  Options
	id      string
	log     *slog.Logger
	state   state
	started time.Time
}

// New validates the device address and options. It does not touch the bus.
func New(bus i2cburst.Bus, address int, opts ...Option) (*Burst, error) {
	if err := i2cburst.ValidAddress("device address", address); err != nil {
		return nil, err
	}
	config, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Burst{
		bus:     bus,
		address: byte(address),
		config:  config,
		id:      id,
		log:     config.Logger.With("burst", id, "address", fmt.Sprintf("0x%02X", address)),
	}, nil
}

// ID identifies the burst in log records.
func (b *Burst) ID() string {
	return b.id
}

// Acquire polls the bus lock until it is taken, the timeout computed at the
// start of the call passes (ErrAcquisitionTimeout) or ctx is done.
func (b *Burst) Acquire(ctx context.Context) (*Handle, error) {
	if b.state != stateIdle {
		return nil, fmt.Errorf("%w (state: %s)", i2cburst.ErrBurstState, b.state)
	}
	if err := ctx.Err(); err != nil {
		b.state = stateFailed
		return nil, err
	}
	b.state = stateAcquiring
	b.started = time.Now()
	b.log.Debug("initializing an I2C burst")
	var deadline time.Time
	if !b.config.NoTimeout {
		deadline = b.started.Add(b.config.Timeout)
	}
	for !b.bus.TryLock() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			b.state = stateFailed
			b.log.Debug("unable to acquire the I2C bus", "timeout", b.config.Timeout)
			return nil, fmt.Errorf("burst 0x%02X: %w (timeout: %s)", b.address, i2cburst.ErrAcquisitionTimeout, b.config.Timeout)
		}
		// I2C bus was busy, wait and retry
		if err := sleep(ctx, b.config.PollInterval); err != nil {
			b.state = stateFailed
			return nil, fmt.Errorf("burst 0x%02X: waiting for bus: %w", b.address, err)
		}
	}
	b.state = stateHeld
	b.log.Debug("acquired a lock on the I2C bus", "elapsed_ms", time.Since(b.started).Milliseconds())
	return b.handle(b.address), nil
}

// Release unlocks the bus if the burst holds it. Only the first call has an effect.
func (b *Burst) Release() {
	if b.state != stateHeld {
		return
	}
	b.state = stateReleased
	b.log.Debug("I2C burst completed, releasing the lock", "elapsed_ms", time.Since(b.started).Milliseconds())
	b.bus.Unlock()
}

// Run acquires the bus, calls fn and releases the bus whatever fn returns,
// including when it panics.
func (b *Burst) Run(ctx context.Context, fn func(h *Handle) error) error {
	h, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer b.Release()
	return fn(h)
}

// Do runs fn in a new burst against the device at address.
func Do(ctx context.Context, bus i2cburst.Bus, address int, fn func(h *Handle) error, opts ...Option) error {
	b, err := New(bus, address, opts...)
	if err != nil {
		return err
	}
	return b.Run(ctx, fn)
}

func (b *Burst) handle(address byte) *Handle {
	return &Handle{
		bus:     b.bus,
		address: address,
		burstID: b.id,
		config:  b.config,
		log:     b.log.With("device", fmt.Sprintf("0x%02X", address)),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
