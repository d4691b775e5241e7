package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/busctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// MaxTransfer is the largest payload a single HID report can carry.
const MaxTransfer = 60

const reportSize = 64

const (
	cmdStatus          = 0x10
	cmdWrite           = 0x90
	cmdRead            = 0x91
	cmdReadRepeated    = 0x93
	cmdWriteNoStop     = 0x94
	cmdGetData         = 0x40
	statusCancel       = 0x10
	statusSetSpeed     = 0x20
	statusSpeedRefused = 0x21
	engineBusy         = 0x01
	readFailed         = 0x41
	readSizeError      = 127
	clockHz            = 12_000_000
	DefaultSpeed       = 100_000
)

var ErrCommandFailed = errors.New("command failed")
var ErrNotFound = errors.New("MCP2221 device not found")

var _ i2cburst.Bus = &MCP2221{}

type device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// MCP2221 drives the I2C engine of a Microchip MCP2221 USB-HID bridge.
// The HID device is opened for each command so the adapter can be unplugged
// between bursts.
type MCP2221 struct {
	bus          sync.Mutex
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	index        int
	open         func(index int) (device, error)
	log          *slog.Logger
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type Option func(*MCP2221)

// WithIndex selects the adapter among the enumerated MCP2221 devices.
func WithIndex(index int) Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

// WithResponseWait sets the pause between a report and its response.
func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *MCP2221) {
		d.log = logger
	}
}

func withDevice(open func(index int) (device, error)) Option {
	return func(d *MCP2221) {
		d.open = open
	}
}

func NewMCP2221(opts ...Option) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		index:        -1,
		open:         openHID,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func openHID(index int) (device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrNotFound
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification (%d adapters found)", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Init cancels any pending transfer and sets the default bus speed.
func (d *MCP2221) Init(ctx context.Context) error {
	if _, err := d.ReleaseBus(ctx); err != nil {
		return err
	}
	return d.SetSpeed(ctx, DefaultSpeed)
}

// SetSpeed sets the I2C clock in Hz. The engine refuses the change while a
// transfer is in progress.
func (d *MCP2221) SetSpeed(ctx context.Context, hz int) error {
	if hz <= 0 || clockHz/hz-3 < 0 || clockHz/hz-3 > 0xFF {
		return fmt.Errorf("%w: unsupported I2C speed %d Hz", i2cburst.ErrValidation, hz)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = statusSetSpeed
	d.request[4] = byte(clockHz/hz - 3)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] == statusSpeedRefused {
		return fmt.Errorf("%w: speed not set (transfer in progress)", ErrCommandFailed)
	}
	return nil
}

func (d *MCP2221) TryLock() bool {
	return d.bus.TryLock()
}

func (d *MCP2221) Unlock() {
	d.bus.Unlock()
}

func (d *MCP2221) WriteTo(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdWrite, address, buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

// WriteThenReadFrom sends out without a STOP condition and reads in after a
// repeated START. An empty out issues a plain read.
func (d *MCP2221) WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if len(in) > MaxTransfer {
		return fmt.Errorf("%w: read of %d bytes exceeds %d", i2cburst.ErrValidation, len(in), MaxTransfer)
	}
	readCmd := byte(cmdRead)
	if len(out) > 0 {
		if err := d.write(ctx, cmdWriteNoStop, address, out); err != nil {
			return fmt.Errorf("write to %#x failed: %w", address, err)
		}
		readCmd = cmdReadRepeated
	}
	d.resetBuffers()
	d.request[0] = readCmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(in)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == engineBusy {
		return d.busy(ctx)
	}
	d.resetBuffers()
	d.request[0] = cmdGetData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == readFailed {
		return fmt.Errorf("%w: error reading the I2C slave data from the I2C engine", ErrCommandFailed)
	}
	if d.response[3] == readSizeError || int(d.response[3]) != len(in) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(in), d.response[3])
	}
	copy(in, d.response[4:4+len(in)])
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > MaxTransfer {
		return fmt.Errorf("%w: write of %d bytes exceeds %d", i2cburst.ErrValidation, len(buffer), MaxTransfer)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] == engineBusy {
		return d.busy(ctx)
	}
	return nil
}

// busy cancels the stuck transfer so that the next attempt starts clean.
func (d *MCP2221) busy(ctx context.Context) error {
	d.log.Debug("adapter busy, cancelling the current transfer", "burst", busctx.BurstID(ctx))
	if _, err := d.releaseBus(ctx); err != nil {
		return fmt.Errorf("%w (release failed: %v)", i2cburst.ErrBusBusy, err)
	}
	return i2cburst.ErrBusBusy
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// ReleaseBus cancels the current transfer and frees the I2C lines.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancel
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open(d.index)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close adapter", "error", err)
		}
	}()
	verbose := busctx.IsVerbose(ctx)
	if verbose {
		d.log.Debug(fmt.Sprintf("sending message to adapter:\n%s", hex.Dump(d.request)))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		timer := time.NewTimer(d.responseWait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response to %#x received for %#x", ErrCommandFailed, d.response[0], d.request[0])
	}
	if verbose {
		d.log.Debug(fmt.Sprintf("read message from adapter:\n%s", hex.Dump(d.response)))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
