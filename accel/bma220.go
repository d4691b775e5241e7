package accel

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
)

const (
	regRange         = 0x22
	regLatch         = 0x1C
	regSlopeSettings = 0x12
	regSlopeDet      = 0x1A
	regWatchdog      = 0x2E
	regInterrupts    = 0x18
)

const addr = 0x0A

const (
	// latch interrupts permanently: lat_int[2:0] = 111
	latchPermanent = 0b01110000
	// permanent latch with the reset_int bit set
	latchReset = 0b11110000
)

// BMA220 represents Bosh BMA220 accelerometer
type BMA220 struct {
	bus   i2cburst.Bus
	batch []burst.BatchOption
}

func NewBMA220(bus i2cburst.Bus, opts ...burst.BatchOption) *BMA220 {
	return &BMA220{bus: bus, batch: opts}
}

/*
en_slope_x (0x1A.5) enable slope detection on x-axis
en_slope_y (0x1A.4) enable slope detection on y-axis
en_slope_z (0x1A.3) enable slope detection on z-axis
slope_th (0x12[5:2]) define the threshold level of the slope 1 LSB threshold is 1 LSB of acc_data
slope_dur (0x12[1:0]) define the number of consecutive slope data points above slope_th which are required to set the interrupt (“00” = 1,”01” = 2,”10” = 3, “11” = 4)
slope_filt (0x12.6) defines whether filtered or unfiltered acceleration data should be used (evaluated) (‘0’=unfiltered, ‘1’=filtered)
slope_int (0x0C.0) whetherslopeinterrupthasbeentriggered
slope_first_x whether x-axis has triggered the interrupt (0=no, 1=yes)
slope_first_y whether y-axis has triggered the interrupt (0=no, 1=yes)
slope_first_z whether z-axis has triggered the interrupt (0=no, 1=yes)
slope_sign global register bit for all interrupts define the slope sign of the triggering signal (0=positive slope, 1=negative slope)
*/
func (b *BMA220) InitMotionDetection(ctx context.Context) error {
	err := burst.WriteDeviceRegisters(ctx, b.bus, []burst.RegisterWrite{
		// set sensitivity
		{Address: addr, Register: regRange, ByteCount: 1, Value: 0x03},
		{Address: addr, Register: regLatch, ByteCount: 1, Value: latchPermanent},
		// enable slope detection on all axes
		{Address: addr, Register: regSlopeDet, ByteCount: 1, Value: 0b00111000},
		// set slope detection parameters (default 0x45)
		{Address: addr, Register: regSlopeSettings, ByteCount: 1, Value: 0x45},
		// enable watchdog
		{Address: addr, Register: regWatchdog, ByteCount: 1, Value: 0x06},
	}, b.batch...)
	if err != nil {
		return fmt.Errorf("could not set up motion detection: %w", err)
	}
	return nil
}

// CheckMotionInterrupt reports whether slope detection has fired since the
// last reset.
func (b *BMA220) CheckMotionInterrupt(ctx context.Context) (bool, error) {
	v, err := burst.ReadDeviceRegister(ctx, b.bus, addr, regInterrupts)
	if err != nil {
		return false, fmt.Errorf("could not read registry content: %w", err)
	}
	// slope detection is on bit 0
	return v&0x01 != 0, nil
}

func (b *BMA220) ResetMotionInterrupt(ctx context.Context) error {
	err := burst.WriteDeviceRegister(ctx, b.bus, addr, regLatch, latchReset)
	if err != nil {
		return fmt.Errorf("could not set interrupt settings: %w", err)
	}
	return nil
}
