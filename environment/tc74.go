package environment

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
)

const tc74DefaultAddress = 0x4D
const tc74TempRegister = 0x00
const tc74ConfigRegister = 0x01

const (
	tc74DataReady = 0x40
	tc74Standby   = 0x80
)

// TC74 represents a Microchip TC74 Digital Temperature Sensor
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21462D.pdf
//
// Usage: Instantiate with NewTC74, then call GetTemperature(ctx)
type TC74 struct {
	bus      i2cburst.Bus
	address  int
	burst    []burst.Option
	lastTemp float32
}

type TC74Config struct {
	Address byte
	Burst   []burst.Option
}

type TC74ConfigOption func(*TC74Config)

func WithAddress(address byte) TC74ConfigOption {
	return func(c *TC74Config) {
		c.Address = address
	}
}

// WithBurstOptions configures the bursts the sensor is read in.
func WithBurstOptions(opts ...burst.Option) TC74ConfigOption {
	return func(c *TC74Config) {
		c.Burst = append(c.Burst, opts...)
	}
}

// NewTC74 creates a new TC74 sensor connector on the given bus. The default
// address is 0x4D.
func NewTC74(bus i2cburst.Bus, opts ...TC74ConfigOption) *TC74 {
	config := &TC74Config{
		Address: tc74DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &TC74{bus: bus, address: int(config.Address), burst: config.Burst}
}

// GetConfig reads the configuration register (0x01) and returns its value.
func (sensor *TC74) GetConfig(ctx context.Context) (byte, error) {
	v, err := burst.ReadDeviceRegister(ctx, sensor.bus, sensor.address, tc74ConfigRegister)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read config register: %w", err)
	}
	return byte(v), nil
}

// GetTemperature reads the current temperature in Celsius. The config and
// temperature registers are read in one burst; while DATA_RDY is clear the
// previous reading is returned.
func (sensor *TC74) GetTemperature(ctx context.Context) (float32, error) {
	err := burst.Do(ctx, sensor.bus, sensor.address, func(h *burst.Handle) error {
		config, err := h.ReadRegister(ctx, tc74ConfigRegister)
		if err != nil {
			return fmt.Errorf("could not read config register: %w", err)
		}
		if config&tc74DataReady == 0 {
			return nil
		}
		raw, err := h.ReadRegister(ctx, tc74TempRegister)
		if err != nil {
			return fmt.Errorf("could not read temp register: %w", err)
		}
		// Convert 2's complement 8-bit value to int8
		sensor.lastTemp = float32(int8(raw))
		return nil
	}, sensor.burst...)
	if err != nil {
		return 0, fmt.Errorf("tc74: %w", err)
	}
	return sensor.lastTemp, nil
}

// SetStandby switches the sensor between standby and normal operation.
func (sensor *TC74) SetStandby(ctx context.Context, standby bool) error {
	var config uint64
	if standby {
		config = tc74Standby
	}
	err := burst.WriteDeviceRegister(ctx, sensor.bus, sensor.address, tc74ConfigRegister, config)
	if err != nil {
		return fmt.Errorf("tc74: could not write config register: %w", err)
	}
	return nil
}
