package i2cburst

import (
	"context"
)

// Bus is the transport every burst runs over. Implementations live in
// i2c (periph.io), adapter (MCP2221), gobotbus and emulation.
type Bus interface {
	// TryLock attempts to take exclusive access to the bus without blocking.
	// It may spuriously return false but never returns true while another
	// holder owns the bus.
	TryLock() bool
	// Unlock releases access taken by a successful TryLock.
	Unlock()
	// WriteTo sends buffer to the device at address.
	WriteTo(ctx context.Context, address byte, buffer []byte) error
	// WriteThenReadFrom sends out and fills in within one transaction.
	// An empty out turns the call into a plain read.
	WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error
}

// Closer is implemented by transports holding OS or USB resources.
type Closer interface {
	Close() error
}
