package i2c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/i2cburst"
)

var _ i2cburst.Bus = &Bus{}
var _ i2cburst.Closer = &Bus{}

// ErrEmptyWriteUnsupported is returned for an empty write (an address probe)
// on a bus that cannot put one on the wire.
var ErrEmptyWriteUnsupported = errors.New("empty writes are not supported by the bus")

// QuickWriter is implemented by buses able to address a device without
// transferring data. Bus uses it for empty writes.
type QuickWriter interface {
	QuickWrite(addr uint16) error
}

// Bus is a Linux I2C bus opened through periph.io. Locking is process local
// unless a lock file is configured, in which case it also excludes other
// processes sharing the same file.
type Bus struct {
	mx    sync.Mutex
	bus   i2c.BusCloser
	quick QuickWriter
	owned io.Closer
	lock  *fileLock
	log   *slog.Logger
}

type options struct {
	lockFile string
	quick    QuickWriter
	owned    io.Closer
	log      *slog.Logger
}

type Option func(*options)

// WithLockFile guards the bus with an advisory lock on path.
func WithLockFile(path string) Option {
	return func(o *options) {
		o.lockFile = path
	}
}

// WithQuickWriter sends empty writes through q instead of the periph bus.
func WithQuickWriter(q QuickWriter) Option {
	return func(o *options) {
		o.quick = q
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.log = logger
	}
}

// Open initializes the host drivers and opens dev ("/dev/i2c-1", "1" or ""
// for the first bus found).
func Open(dev string, opts ...Option) (*Bus, error) {
	o := newOptions(opts)
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		o.log.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	var quick *devQuick
	if _, ok := bus.(QuickWriter); !ok && o.quick == nil {
		quick, err = openQuick(bus.String())
		if err != nil {
			o.log.Warn("address probes disabled", "bus", bus.String(), "error", err)
		} else {
			opts = append(opts, func(o *options) {
				o.quick = quick
				o.owned = quick
			})
		}
	}
	b, err := New(bus, opts...)
	if err != nil {
		_ = bus.Close()
		if quick != nil {
			_ = quick.Close()
		}
		return nil, err
	}
	return b, nil
}

// New wraps an already opened periph bus.
func New(bus i2c.BusCloser, opts ...Option) (*Bus, error) {
	o := newOptions(opts)
	b := &Bus{
		bus:   bus,
		quick: o.quick,
		owned: o.owned,
		log:   o.log,
	}
	if q, ok := bus.(QuickWriter); ok && b.quick == nil {
		b.quick = q
	}
	if o.lockFile != "" {
		lock, err := openLock(o.lockFile)
		if err != nil {
			return nil, fmt.Errorf("could not open lock file: %w", err)
		}
		b.lock = lock
	}
	return b, nil
}

func newOptions(opts []Option) options {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (b *Bus) TryLock() bool {
	if !b.mx.TryLock() {
		return false
	}
	if b.lock == nil {
		return true
	}
	ok, err := b.lock.tryLock()
	if err != nil {
		b.log.Warn("could not lock the bus file", "error", err)
	}
	if !ok {
		b.mx.Unlock()
	}
	return ok
}

func (b *Bus) Unlock() {
	if b.lock != nil {
		if err := b.lock.unlock(); err != nil {
			b.log.Warn("could not unlock the bus file", "error", err)
		}
	}
	b.mx.Unlock()
}

// WriteTo writes buffer to the device. An empty buffer addresses the device
// without data and fails when it does not acknowledge.
func (b *Bus) WriteTo(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) == 0 {
		if b.quick == nil {
			return fmt.Errorf("could not probe %#x: %w", address, ErrEmptyWriteUnsupported)
		}
		if err := b.quick.QuickWrite(uint16(address)); err != nil {
			return fmt.Errorf("no acknowledge from %#x: %w", address, err)
		}
		return nil
	}
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %#x: %w", address, err)
	}
	return nil
}

func (b *Bus) WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error {
	err := b.bus.Tx(uint16(address), out, in)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %#x: %w", address, err)
	}
	return nil
}

// SetSpeed changes the bus clock when the driver supports it.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if err := b.bus.SetSpeed(f); err != nil {
		return fmt.Errorf("could not set bus speed to %s: %w", f, err)
	}
	return nil
}

func (b *Bus) String() string {
	return b.bus.String()
}

func (b *Bus) Close() error {
	errs := []error{b.bus.Close()}
	if b.owned != nil {
		errs = append(errs, b.owned.Close())
	}
	if b.lock != nil {
		errs = append(errs, b.lock.close())
	}
	return errors.Join(errs...)
}
