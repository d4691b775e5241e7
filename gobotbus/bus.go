// Package gobotbus runs bursts over the I2C connections of a gobot adaptor
// (NanoPi, Raspberry Pi, Jetson and the other gobot platforms).
package gobotbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/i2cburst"
)

var _ i2cburst.Bus = &Bus{}
var _ i2cburst.Closer = &Bus{}

// Bus opens one gobot connection per device address and keeps it until Close.
// Gobot has no combined transfer so WriteThenReadFrom issues a write followed
// by a read; the burst lock keeps other writers off the bus in between.
type Bus struct {
	lock        sync.Mutex
	mx          sync.Mutex
	connector   i2c.Connector
	busNr       int
	connections map[byte]i2c.Connection
}

type Option func(*Bus)

// WithBusNumber selects the bus of the adaptor (defaults to the adaptor's own default).
func WithBusNumber(n int) Option {
	return func(b *Bus) {
		b.busNr = n
	}
}

func New(connector i2c.Connector, opts ...Option) *Bus {
	b := &Bus{
		connector:   connector,
		busNr:       connector.DefaultI2cBus(),
		connections: make(map[byte]i2c.Connection),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) TryLock() bool {
	return b.lock.TryLock()
}

func (b *Bus) Unlock() {
	b.lock.Unlock()
}

func (b *Bus) WriteTo(ctx context.Context, address byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if _, err := conn.Write(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %#x: %w", address, err)
	}
	return nil
}

func (b *Bus) WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := conn.Write(out); err != nil {
			return fmt.Errorf("could not write to i2c bus %#x: %w", address, err)
		}
	}
	n, err := conn.Read(in)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %#x: %w", address, err)
	}
	if n != len(in) {
		return fmt.Errorf("short read from i2c bus %#x: %d of %d bytes", address, n, len(in))
	}
	return nil
}

func (b *Bus) connection(address byte) (i2c.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if conn, ok := b.connections[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %#x on bus %d: %w", address, b.busNr, err)
	}
	b.connections[address] = conn
	return conn, nil
}

// Close closes every connection opened so far. The adaptor itself is left to
// the caller.
func (b *Bus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for address, conn := range b.connections {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %#x: %w", address, err))
		}
		delete(b.connections, address)
	}
	return errors.Join(errs...)
}
