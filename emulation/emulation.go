// Package emulation provides an in-memory I2C bus. It stores register and
// state values per device and can make the bus hard to lock, which is how
// contention and backoff paths are exercised without hardware.
//
// The emulation does not model device specific behaviour such as mirrored
// registers or auto-incrementing pointers.
package emulation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/conv"
)

var _ i2cburst.Bus = &Bus{}

var (
	ErrNoDevice   = errors.New("emulation: no device acknowledged the address")
	ErrNoRegister = errors.New("emulation: register not present")
	ErrInjected   = errors.New("emulation: injected remote I/O error")
)

// Key addresses a value inside an emulated device: either one of its
// registers or its internal state word.
type Key struct {
	state    bool
	register byte
}

// DeviceState is the key of a device's internal state.
var DeviceState = Key{state: true}

// Register returns the key of register r.
func Register(r byte) Key {
	return Key{register: r}
}

// Reg returns the register address and false when k is DeviceState.
func (k Key) Reg() (byte, bool) {
	return k.register, !k.state
}

func (k Key) String() string {
	if k.state {
		return "state"
	}
	return fmt.Sprintf("register 0x%02X", k.register)
}

// Device holds the values of one emulated device.
type Device map[Key]uint64

// State maps device addresses to their contents.
type State map[byte]Device

// Stats counts calls made against the bus.
type Stats struct {
	LockAttempts int
	Locks        int
	Unlocks      int
	Writes       int
	Reads        int
	Faults       int
}

type Config struct {
	LockChance int
	Seed       *uint64
	Latency    time.Duration
}

type Option func(*Config)

// WithLockChance sets the percentage (0-100) of TryLock calls that may succeed.
func WithLockChance(chance int) Option {
	return func(c *Config) {
		c.LockChance = chance
	}
}

// WithSeed makes lock contention reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = &seed
	}
}

// WithLatency delays every transaction, imitating a slow bus clock.
func WithLatency(d time.Duration) Option {
	return func(c *Config) {
		c.Latency = d
	}
}

type Bus struct {
	mx       sync.Mutex
	config   Config
	rnd      *rand.Rand
	state    State
	pointers map[byte]byte
	locked   bool
	faults   int
	stats    Stats
}

// New creates an emulated bus seeded with a copy of state.
//
//	bus, err := emulation.New(emulation.State{
//		0x4C: {emulation.Register(0x00): 0x12},
//		0x70: {emulation.DeviceState: 0x01},
//	})
//
// A device whose contents hold DeviceState is treated as a state device: every
// write replaces the state and plain reads return it. All other devices are
// register devices: the first written byte selects the register and the
// remaining bytes carry its big-endian value.
func New(state State, opts ...Option) (*Bus, error) {
	config := Config{
		LockChance: 100,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.LockChance < 0 || config.LockChance > 100 {
		return nil, fmt.Errorf("%w: lock chance %d (allowed range: 0 ≤ x ≤ 100)", i2cburst.ErrValidation, config.LockChance)
	}
	var src rand.Source
	if config.Seed != nil {
		src = rand.NewPCG(*config.Seed, *config.Seed)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	b := &Bus{
		config:   config,
		rnd:      rand.New(src),
		state:    make(State, len(state)),
		pointers: make(map[byte]byte),
	}
	for addr, dev := range state {
		b.state[addr] = maps.Clone(dev)
		if b.state[addr] == nil {
			b.state[addr] = Device{}
		}
	}
	return b, nil
}

func (b *Bus) TryLock() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stats.LockAttempts++
	// may randomly fail to acquire a lock
	if b.rnd.IntN(100) >= b.config.LockChance {
		return false
	}
	if b.locked {
		return false
	}
	b.locked = true
	b.stats.Locks++
	return true
}

func (b *Bus) Unlock() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stats.Unlocks++
	b.locked = false
}

// FailNext makes the next n transactions fail with ErrInjected.
func (b *Bus) FailNext(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.faults = n
}

func (b *Bus) WriteTo(ctx context.Context, address byte, buffer []byte) error {
	if err := b.delay(ctx); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stats.Writes++
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	return b.write(address, dev, buffer)
}

func (b *Bus) WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error {
	if err := b.delay(ctx); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stats.Reads++
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if err := b.write(address, dev, out); err != nil {
			return err
		}
	}
	if len(in) == 0 {
		return nil
	}
	key := DeviceState
	if !isStateDevice(dev) {
		reg, ok := b.pointers[address]
		if !ok {
			return fmt.Errorf("%w: device 0x%02X has no register selected", ErrNoRegister, address)
		}
		key = Register(reg)
	}
	value, ok := dev[key]
	if !ok {
		return fmt.Errorf("%w: device 0x%02X %s", ErrNoRegister, address, key)
	}
	buf, err := conv.Encode(value, len(in))
	if err != nil {
		return fmt.Errorf("emulation: device 0x%02X %s value %#x does not fit in %d bytes: %w", address, key, value, len(in), err)
	}
	copy(in, buf)
	return nil
}

func (b *Bus) delay(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.config.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(b.config.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// device returns the contents at address; b.mx must be held.
func (b *Bus) device(address byte) (Device, error) {
	if b.faults > 0 {
		b.faults--
		b.stats.Faults++
		return nil, ErrInjected
	}
	dev, ok := b.state[address]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrNoDevice, address)
	}
	return dev, nil
}

func (b *Bus) write(address byte, dev Device, buffer []byte) error {
	// an empty write is an address probe
	if len(buffer) == 0 {
		return nil
	}
	if isStateDevice(dev) {
		value, err := conv.Decode(buffer)
		if err != nil {
			return fmt.Errorf("emulation: invalid state write to 0x%02X: %w", address, err)
		}
		dev[DeviceState] = value
		return nil
	}
	b.pointers[address] = buffer[0]
	// a single byte only moves the register pointer
	if len(buffer) == 1 {
		return nil
	}
	value, err := conv.Decode(buffer[1:])
	if err != nil {
		return fmt.Errorf("emulation: invalid register write to 0x%02X: %w", address, err)
	}
	dev[Register(buffer[0])] = value
	return nil
}

func isStateDevice(dev Device) bool {
	_, ok := dev[DeviceState]
	return ok
}

// Value returns the stored value of key on the device at address.
func (b *Bus) Value(address byte, key Key) (uint64, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	v, ok := b.state[address][key]
	return v, ok
}

// Device returns a copy of the contents of the device at address.
func (b *Bus) Device(address byte) Device {
	b.mx.Lock()
	defer b.mx.Unlock()
	return maps.Clone(b.state[address])
}

func (b *Bus) Stats() Stats {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.stats
}

// Locked reports whether the emulated lock is currently held.
func (b *Bus) Locked() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.locked
}
