// Package mux drives I2C multiplexers.
package mux

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
)

const DefaultTCA9548AAddress = 0x70

const tca9548aChannels = 8

// TCA9548A is an 8 channel I2C switch. Its only register is the control
// byte, one bit per downstream channel, accessed as the device state.
type TCA9548A struct {
	bus     i2cburst.Bus
	address int
	burst   []burst.Option
}

func NewTCA9548A(bus i2cburst.Bus, address byte, opts ...burst.Option) *TCA9548A {
	return &TCA9548A{bus: bus, address: int(address), burst: opts}
}

// Select connects the given channels and disconnects all others.
func (m *TCA9548A) Select(ctx context.Context, channels ...int) error {
	var mask uint64
	for _, ch := range channels {
		if ch < 0 || ch >= tca9548aChannels {
			return fmt.Errorf("%w: channel %d is out of range (allowed range: 0 ≤ x ≤ %d)", i2cburst.ErrValidation, ch, tca9548aChannels-1)
		}
		mask |= 1 << ch
	}
	return m.set(ctx, mask)
}

// Disable disconnects every channel.
func (m *TCA9548A) Disable(ctx context.Context) error {
	return m.set(ctx, 0)
}

// Channels returns the connected channels in ascending order.
func (m *TCA9548A) Channels(ctx context.Context) ([]int, error) {
	var mask uint64
	err := burst.Do(ctx, m.bus, m.address, func(h *burst.Handle) error {
		var err error
		mask, err = h.GetState(ctx)
		return err
	}, m.burst...)
	if err != nil {
		return nil, fmt.Errorf("tca9548a: could not read control register: %w", err)
	}
	channels := make([]int, 0, bits.OnesCount64(mask))
	for ch := range tca9548aChannels {
		if mask&(1<<ch) != 0 {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

func (m *TCA9548A) set(ctx context.Context, mask uint64) error {
	err := burst.Do(ctx, m.bus, m.address, func(h *burst.Handle) error {
		return h.SetState(ctx, mask)
	}, m.burst...)
	if err != nil {
		return fmt.Errorf("tca9548a: could not write control register: %w", err)
	}
	return nil
}
