package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
)

type registry int

const DefaultMCP23017Address = 0x21

// Registries, addressed through BankAddr
const (
	IODIRA registry = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	OLATA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

var (
	BankAddr = []map[registry]byte{
		{
			IODIRA:   0x00,
			IOPOLA:   0x02,
			GPINTENA: 0x04,
			DEFVALA:  0x06,
			INTCONA:  0x08,
			IOCONA:   0x0A,
			GPPUA:    0x0C,
			INTFA:    0x0E,
			INTCAPA:  0x10,
			GPIOA:    0x12,
			OLATA:    0x14,
			IODIRB:   0x01,
			IOPOLB:   0x03,
			GPINTENB: 0x05,
			DEFVALB:  0x07,
			INTCONB:  0x09,
			IOCONB:   0x0B,
			GPPUB:    0x0D,
			INTFB:    0x0F,
			INTCAPB:  0x11,
			GPIOB:    0x13,
			OLATB:    0x15,
		},
		{
			IODIRA:   0x00,
			IOPOLA:   0x01,
			GPINTENA: 0x02,
			DEFVALA:  0x03,
			INTCONA:  0x04,
			IOCONA:   0x05,
			GPPUA:    0x06,
			INTFA:    0x07,
			INTCAPA:  0x08,
			GPIOA:    0x09,
			OLATA:    0x0A,
			IODIRB:   0x10,
			IOPOLB:   0x11,
			GPINTENB: 0x12,
			DEFVALB:  0x13,
			INTCONB:  0x14,
			IOCONB:   0x15,
			GPPUB:    0x16,
			INTFB:    0x17,
			INTCAPB:  0x18,
			GPIOB:    0x19,
			OLATB:    0x1A,
		},
	}
)

// iocon.BANK selects the register layout
const ioconBank = 0x80

/*
	Steps to read GPIO:

1. Set 0xFF to IODIR registry (all inputs) - 0x00(A)/0x01(B)
2. Configure pull-up? 0x06
3. Read port register 0x09
*/
type MCP23017 struct {
	mx      sync.Mutex
	bus     i2cburst.Bus
	bank    int
	address int
	burst   []burst.Option
}

func NewMCP23017(bus i2cburst.Bus, address byte, opts ...burst.Option) *MCP23017 {
	return &MCP23017{bus: bus, address: int(address), burst: opts}
}

func (m *MCP23017) reg(r registry) int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return int(BankAddr[m.bank][r])
}

// Init sets the direction of both I/O sets in one burst
func (m *MCP23017) Init(ctx context.Context, inoutA, inoutB byte) error {
	err := burst.WriteDeviceRegisters(ctx, m.bus, []burst.RegisterWrite{
		{Address: m.address, Register: m.reg(IODIRA), ByteCount: 1, Value: uint64(inoutA)},
		{Address: m.address, Register: m.reg(IODIRB), ByteCount: 1, Value: uint64(inoutB)},
	}, burst.WithBurstOptions(m.burst...))
	if err != nil {
		return fmt.Errorf("could not initialize gpio: %w", err)
	}
	return nil
}

// InitA sets IODIR registry to inout on I/O pool A
func (m *MCP23017) InitA(ctx context.Context, inout byte) error {
	if err := m.write(ctx, IODIRA, inout); err != nil {
		return fmt.Errorf("could not initialize gpio A set: %w", err)
	}
	return nil
}

// InitB sets IODIR registry to inout on I/O pool B
func (m *MCP23017) InitB(ctx context.Context, inout byte) error {
	if err := m.write(ctx, IODIRB, inout); err != nil {
		return fmt.Errorf("could not initialize gpio B set: %w", err)
	}
	return nil
}

// PullUpA sets up pull up resistors on set A
func (m *MCP23017) PullUpA(ctx context.Context, settings byte) error {
	if err := m.write(ctx, GPPUA, settings); err != nil {
		return fmt.Errorf("could not set pull-up on gpio A set: %w", err)
	}
	return nil
}

// PullUpB sets up pull up resistors on set B
func (m *MCP23017) PullUpB(ctx context.Context, settings byte) error {
	if err := m.write(ctx, GPPUB, settings); err != nil {
		return fmt.Errorf("could not set pull-up on gpio B set: %w", err)
	}
	return nil
}

// Read reads both sets under a single bus lock.
func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	values, err := burst.ReadDeviceRegisters(ctx, m.bus, []burst.RegisterRead{
		{Address: m.address, Register: m.reg(GPIOA), ByteCount: 1},
		{Address: m.address, Register: m.reg(GPIOB), ByteCount: 1},
	}, burst.WithBurstOptions(m.burst...))
	if err != nil {
		return nil, fmt.Errorf("could not read gpio: %w", err)
	}
	return []byte{byte(values[0]), byte(values[1])}, nil
}

// ReadA reads gpio A set values
func (m *MCP23017) ReadA(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, GPIOA)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio A set: %w", err)
	}
	return res, nil
}

// ReadB reads gpio B set values
func (m *MCP23017) ReadB(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, GPIOB)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio B set: %w", err)
	}
	return res, nil
}

// WriteA sets the output latches of set A
func (m *MCP23017) WriteA(ctx context.Context, values byte) error {
	if err := m.write(ctx, OLATA, values); err != nil {
		return fmt.Errorf("could not write gpio A set: %w", err)
	}
	return nil
}

// WriteB sets the output latches of set B
func (m *MCP23017) WriteB(ctx context.Context, values byte) error {
	if err := m.write(ctx, OLATB, values); err != nil {
		return fmt.Errorf("could not write gpio B set: %w", err)
	}
	return nil
}

// ReadSettingsA reads contents of IOCON registry
func (m *MCP23017) ReadSettingsA(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, IOCONA)
	if err != nil {
		return 0, fmt.Errorf("could not read settings of gpio A set: %w", err)
	}
	return res, nil
}

// WriteSettingsA writes IOCON. Setting the BANK bit switches the register
// layout used by later calls.
func (m *MCP23017) WriteSettingsA(ctx context.Context, settings byte) error {
	if err := m.writeSettings(ctx, IOCONA, settings); err != nil {
		return fmt.Errorf("could not write settings on gpio A set: %w", err)
	}
	return nil
}

// ReadSettingsB reads contents of IOCON registry
func (m *MCP23017) ReadSettingsB(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, IOCONB)
	if err != nil {
		return 0, fmt.Errorf("could not read settings of gpio B set: %w", err)
	}
	return res, nil
}

// WriteSettingsB writes IOCON through its set B address. Both addresses map
// to the same register.
func (m *MCP23017) WriteSettingsB(ctx context.Context, settings byte) error {
	if err := m.writeSettings(ctx, IOCONB, settings); err != nil {
		return fmt.Errorf("could not write settings on gpio B set: %w", err)
	}
	return nil
}

func (m *MCP23017) writeSettings(ctx context.Context, r registry, settings byte) error {
	if err := m.write(ctx, r, settings); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if settings&ioconBank != 0 {
		m.bank = 1
	} else {
		m.bank = 0
	}
	return nil
}

func (m *MCP23017) read(ctx context.Context, r registry) (byte, error) {
	var res byte
	err := burst.Do(ctx, m.bus, m.address, func(h *burst.Handle) error {
		v, err := h.ReadRegister(ctx, m.reg(r))
		res = byte(v)
		return err
	}, m.burst...)
	return res, err
}

func (m *MCP23017) write(ctx context.Context, r registry, value byte) error {
	return burst.Do(ctx, m.bus, m.address, func(h *burst.Handle) error {
		return h.WriteRegister(ctx, m.reg(r), uint64(value))
	}, m.burst...)
}
