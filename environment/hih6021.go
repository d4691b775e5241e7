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

const defaultAddress = 0x27

var divider = float32(1<<14 - 2)

var ErrStaleData = fmt.Errorf("stale data")
var ErrCommandMode = fmt.Errorf("device in command mode")

// HIH6021 represents Honywell HumidIcon Digital Humidity/Temperature sensor.
// A measurement is requested with an empty write and fetched as a 4 byte state.
type HIH6021 struct {
	bus      i2cburst.Bus
	burst    []burst.Option
	wait     time.Duration
	lastTemp float32
	lastHum  float32
}

func NewHIH6021(bus i2cburst.Bus, opts ...burst.Option) *HIH6021 {
	return &HIH6021{
		bus:   bus,
		burst: opts,
		// measurement cycle takes typically 36.65ms
		wait: 50 * time.Millisecond,
	}
}

func (sensor *HIH6021) GetTemperature(ctx context.Context) (float32, error) {
	err := sensor.measure(ctx)
	return sensor.lastTemp, err
}

func (sensor *HIH6021) GetHumidity(ctx context.Context) (float32, error) {
	err := sensor.measure(ctx)
	return sensor.lastHum, err
}

func (sensor *HIH6021) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	err := sensor.measure(ctx)
	return sensor.lastTemp, sensor.lastHum, err
}

func (sensor *HIH6021) measure(ctx context.Context) error {
	err := burst.Do(ctx, sensor.bus, defaultAddress, func(h *burst.Handle) error {
		return h.Probe(ctx, burst.MaxTries(3))
	}, sensor.burst...)
	if err != nil {
		return fmt.Errorf("could not write measurement request to device: %w", err)
	}
	timer := time.NewTimer(sensor.wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	var raw uint64
	err = burst.Do(ctx, sensor.bus, defaultAddress, func(h *burst.Handle) error {
		raw, err = h.GetState(ctx, burst.ByteCount(4))
		return err
	}, sensor.burst...)
	if err != nil {
		return fmt.Errorf("could not read measurement from device: %w", err)
	}
	resp, err := conv.Encode(raw, 4)
	if err != nil {
		return err
	}
	// check the oldest bit
	if resp[0]&0x80 > 0 {
		return ErrCommandMode
	}
	// check the second oldest bit
	if resp[0]&0x40 > 0 {
		// data has already been fetched since last measurement ot data fetched before the first measurement
		// has been completed
		return ErrStaleData
	}
	sensor.lastHum = convertHumidity(resp[0:2])
	sensor.lastTemp = convertTemperature(resp[2:4])
	return nil
}

func convertHumidity(resp []byte) float32 {
	hum := float32(binary.BigEndian.Uint16(resp)) / divider * 100
	if hum > 100.00 {
		return 100.00
	}
	return hum
}

func convertTemperature(resp []byte) float32 {
	shift := resp[0] & 0x03
	shift <<= 6
	lsb := (resp[1] >> 2) | shift
	msb := resp[0] >> 2
	return float32(binary.BigEndian.Uint16([]byte{msb, lsb}))/divider*165 - 40
}
