package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/conv"
)

// SHTC3 I2C address (7-bit)
const shtc3Address = 0x70

// Commands (Big Endian on the wire)
const (
	shtc3CmdWake  uint16 = 0x3517
	shtc3CmdSleep uint16 = 0xB098

	// Normal power, clock stretching disabled
	// Measure T first, then RH
	shtc3CmdMeasureTFirstNoCS uint16 = 0x7866
)

// SHTC3 represents Sensirion SHTC3 Temperature/Humidity sensor. Its commands
// are 16-bit words written as device state and the 6 byte result is read back
// as state.
// Typical usage:
//
//	s := NewSHTC3(bus)
//	t, h, err := s.GetTempAndHum(ctx)
type SHTC3 struct {
	bus      i2cburst.Bus
	burst    []burst.Option
	wait     time.Duration
	lastTemp float32
	lastHum  float32
}

func NewSHTC3(bus i2cburst.Bus, opts ...burst.Option) *SHTC3 {
	return &SHTC3{
		bus:   bus,
		burst: opts,
		// Typical measurement time ~12.1 ms (normal mode). Wait conservatively.
		wait: 15 * time.Millisecond,
	}
}

// GetTemperature performs a single measurement and returns temperature in Celsius.
func (s *SHTC3) GetTemperature(ctx context.Context) (float32, error) {
	if err := s.measure(ctx); err != nil {
		return 0, err
	}
	return s.lastTemp, nil
}

// GetHumidity performs a single measurement and returns relative humidity in %RH.
func (s *SHTC3) GetHumidity(ctx context.Context) (float32, error) {
	if err := s.measure(ctx); err != nil {
		return 0, err
	}
	return s.lastHum, nil
}

// GetTempAndHum performs a single measurement and returns temperature and humidity.
func (s *SHTC3) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	if err := s.measure(ctx); err != nil {
		return 0, 0, err
	}
	return s.lastTemp, s.lastHum, nil
}

func (s *SHTC3) measure(ctx context.Context) error {
	err := burst.Do(ctx, s.bus, shtc3Address, func(h *burst.Handle) error {
		if err := s.command(ctx, h, shtc3CmdWake); err != nil {
			return fmt.Errorf("wake failed: %w", err)
		}
		// Typical wake time is very short (< 240us)
		time.Sleep(time.Millisecond)
		if err := s.command(ctx, h, shtc3CmdMeasureTFirstNoCS); err != nil {
			return fmt.Errorf("measure command failed: %w", err)
		}
		return nil
	}, s.burst...)
	if err != nil {
		return fmt.Errorf("shtc3: %w", err)
	}

	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Read 6 bytes: T[0:2], CRC, RH[3:5]
	var buf []byte
	err = burst.Do(ctx, s.bus, shtc3Address, func(h *burst.Handle) error {
		raw, err := h.GetState(ctx, burst.ByteCount(6))
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		buf, err = conv.Encode(raw, 6)
		if err != nil {
			return err
		}
		// Go back to sleep to save power
		if err := s.command(ctx, h, shtc3CmdSleep); err != nil {
			return fmt.Errorf("sleep failed: %w", err)
		}
		return nil
	}, s.burst...)
	if err != nil {
		return fmt.Errorf("shtc3: %w", err)
	}

	if conv.CRC8(buf[0:2]) != buf[2] {
		return fmt.Errorf("shtc3: temperature CRC mismatch")
	}
	if conv.CRC8(buf[3:5]) != buf[5] {
		return fmt.Errorf("shtc3: humidity CRC mismatch")
	}

	rawT := binary.BigEndian.Uint16(buf[0:2])
	rawRH := binary.BigEndian.Uint16(buf[3:5])

	// T(C) = -45 + 175 * rawT / 65535
	// RH(%) = 100 * rawRH / 65535
	s.lastTemp = -45.0 + (175.0 * float32(rawT) / 65535.0)
	s.lastHum = 100.0 * float32(rawRH) / 65535.0
	return nil
}

func (s *SHTC3) command(ctx context.Context, h *burst.Handle, cmd uint16) error {
	return h.SetState(ctx, uint64(cmd), burst.ByteCount(2))
}
