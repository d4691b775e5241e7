package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

// BH1750Mode is a one time measurement opcode.
type BH1750Mode byte

const (
	opCodePowerDown = 0b00000000
	opCodePowerOn   = 0b00000001
	opCodeReset     = 0b00000111

	ModeSingleHighResolution  BH1750Mode = 0b00100000
	ModeSingleHighResolution2 BH1750Mode = 0b00100001
	ModeSingleLowResolution   BH1750Mode = 0b00100011
)

// measurement returns the maximum conversion time of the mode.
func (m BH1750Mode) measurement() time.Duration {
	if m == ModeSingleLowResolution {
		// measurement cycle takes typically 16ms, max time is 24ms, we will wait for 25ms
		return 25 * time.Millisecond
	}
	return 180 * time.Millisecond
}

// BH1750 is a Rohm ambient light sensor. It has no registers: the opcode is
// written as the device state and the 16-bit result is read back as state.
// The bus is released while the conversion runs.
type BH1750 struct {
	bus   i2cburst.Bus
	addr  int
	mode  BH1750Mode
	burst []burst.Option
}

func NewBH1750(bus i2cburst.Bus, addr byte, opts ...burst.Option) *BH1750 {
	return &BH1750{
		addr:  int(addr),
		bus:   bus,
		mode:  ModeSingleLowResolution,
		burst: opts,
	}
}

func (sensor *BH1750) SetMode(mode BH1750Mode) {
	sensor.mode = mode
}

func (sensor *BH1750) GetLux(ctx context.Context) (int, error) {
	err := sensor.command(ctx, byte(sensor.mode))
	if err != nil {
		return 0, fmt.Errorf("could not write command: %w", err)
	}
	timer := time.NewTimer(sensor.mode.measurement())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	var raw uint64
	err = burst.Do(ctx, sensor.bus, sensor.addr, func(h *burst.Handle) error {
		raw, err = h.GetState(ctx, burst.ByteCount(2))
		return err
	}, sensor.burst...)
	if err != nil {
		return 0, fmt.Errorf("could not read data: %w", err)
	}
	res := float32(raw) / 1.2
	if sensor.mode == ModeSingleHighResolution2 {
		res /= 2
	}
	return int(res), nil
}

func (sensor *BH1750) PowerOn(ctx context.Context) error {
	return sensor.command(ctx, opCodePowerOn)
}

func (sensor *BH1750) PowerDown(ctx context.Context) error {
	return sensor.command(ctx, opCodePowerDown)
}

// Reset clears the data register. The sensor must be powered on.
func (sensor *BH1750) Reset(ctx context.Context) error {
	return sensor.command(ctx, opCodeReset)
}

func (sensor *BH1750) command(ctx context.Context, opcode byte) error {
	return burst.Do(ctx, sensor.bus, sensor.addr, func(h *burst.Handle) error {
		return h.SetState(ctx, uint64(opcode))
	}, sensor.burst...)
}
