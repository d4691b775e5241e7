package air

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/conv"
)

// AGS02MA default 7-bit I2C address is 0x1A.
// Datasheet also mentions write/read instructions 0x34/0x35 which are the
// 8-bit bus addresses (0x1A<<1 | 0 for write, | 1 for read) used on the wire.
const ags02maAddress = 0x1A

// Register/command map (per datasheet)
//
//	0x00: TVOC readout (first byte is status, next three bytes are TVOC ppb)
const (
	regTVOC       byte = 0x00
	regVersion    byte = 0x11
	regResistance byte = 0x20
	regCalibrate  byte = 0x01
)

// Status byte bit definitions (Data1):
// Bit0: RDY (0 = ready, 1 = not ready or pre-heat)
// Bit3..1: CI[2:0] data type (000 => TVOC in ppb after power-on)
// Bit7..4: Reserved (0)
const (
	statusBitRDY = 0x01
)

// configureCommand sets the TVOC register to PPB mode (0x00 0xFF inverted
// pair) followed by its CRC.
const configureCommand = 0x00_00_FF_00_FF_30

const responseSize = 5

var ErrNotReady = fmt.Errorf("ags02ma: data not ready or sensor in pre-heat stage")

const (
	TVOCModeDirectRead    byte = 0x00
	TVOCModeRegisterWrite byte = 0x01
)

type AGS02MAOpts struct {
	ConfigureDelay time.Duration
	ReadDelay      time.Duration
	TxDelay        time.Duration
	TVOCMode       byte
	Burst          []burst.Option
}

type AGS02MAOpt func(*AGS02MAOpts)

func WithConfigureDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ConfigureDelay = delay
	}
}

func WithReadDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.ReadDelay = delay
	}
}

func WithTxDelay(delay time.Duration) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TxDelay = delay
	}
}

func WithTVOCMode(mode byte) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.TVOCMode = mode
	}
}

func WithBurstOptions(opts ...burst.Option) AGS02MAOpt {
	return func(o *AGS02MAOpts) {
		o.Burst = append(o.Burst, opts...)
	}
}

// AGS02MA represents Aosong AGS02MA TVOC sensor.
// Typical usage:
//
//	s := NewAGS02MA(bus)
//	v, err := s.GetTVOC(ctx)
//
// Value is returned in parts-per-billion (ppb) as integer.
// Note: The sensor requires a slow I2C clock (<= 30 kHz). Ensure adapter supports it.
//
// The sensor has no register pointer in the usual sense: a command byte is
// written as device state and the 5 byte answer is read back as state after
// TxDelay. The bus is released in between.
type AGS02MA struct {
	mx        sync.Mutex
	delayDone chan struct{} // closed when delay after last operation completes
	delayMx   sync.Mutex    // protects delayDone channel

	config AGS02MAOpts

	bus  i2cburst.Bus
	addr int
}

func NewAGS02MA(bus i2cburst.Bus, opts ...AGS02MAOpt) *AGS02MA {
	config := AGS02MAOpts{
		ConfigureDelay: 2 * time.Second,
		ReadDelay:      1500 * time.Millisecond,
		TxDelay:        100 * time.Millisecond,
		TVOCMode:       TVOCModeRegisterWrite,
	}
	for _, opt := range opts {
		opt(&config)
	}
	// Create a closed channel so first operation can proceed immediately
	ch := make(chan struct{})
	close(ch)
	return &AGS02MA{
		config:    config,
		bus:       bus,
		addr:      ags02maAddress,
		delayDone: ch,
	}
}

// waitForDelay waits for any pending delay from previous operations to complete.
func (s *AGS02MA) waitForDelay(ctx context.Context) error {
	s.delayMx.Lock()
	ch := s.delayDone
	s.delayMx.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleDelay schedules a delay in a goroutine and updates delayDone channel when complete.
func (s *AGS02MA) scheduleDelay(ctx context.Context, duration time.Duration) {
	s.delayMx.Lock()
	ch := make(chan struct{})
	s.delayDone = ch
	s.delayMx.Unlock()

	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		close(ch)
	}()
}

func (s *AGS02MA) Close(ctx context.Context) {
	_ = s.waitForDelay(ctx)
}

func (s *AGS02MA) Configure(ctx context.Context) error {
	if err := s.waitForDelay(ctx); err != nil {
		return err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	err := s.write(ctx, configureCommand, 6)
	if err != nil {
		return fmt.Errorf("ags02ma: configuration write failed: %w", err)
	}
	// Recommended 2 second delay after configuration (runs asynchronously)
	s.scheduleDelay(ctx, s.config.ConfigureDelay)
	return nil
}

// GetTVOC performs a "master direct read" or "register write" as described in the datasheet.
// The mode is determined by the TVOCMode configuration option.
func (s *AGS02MA) GetTVOC(ctx context.Context) (uint32, error) {
	if s.config.TVOCMode == TVOCModeDirectRead {
		return s.GetTVOCDirectRead(ctx)
	}
	return s.GetTVOCWithRegisterWrite(ctx)
}

// GetTVOCDirectRead performs a "master direct read" as described in the datasheet.
// This does NOT write the register first and simply reads the response.
// The first byte is status; the next three make a 24-bit big-endian ppb value.
func (s *AGS02MA) GetTVOCDirectRead(ctx context.Context) (uint32, error) {
	if err := s.waitForDelay(ctx); err != nil {
		return 0, err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	buf, err := s.read(ctx)
	if err != nil {
		return 0, fmt.Errorf("ags02ma: read failed: %w", err)
	}
	return s.tvoc(ctx, buf)
}

// GetTVOCWithRegisterWrite explicitly writes register 0x00 and then reads.
// The RDY bit of the status byte is authoritative.
func (s *AGS02MA) GetTVOCWithRegisterWrite(ctx context.Context) (uint32, error) {
	buf, err := s.command(ctx, regTVOC)
	if err != nil {
		return 0, err
	}
	return s.tvoc(ctx, buf)
}

func (s *AGS02MA) tvoc(ctx context.Context, buf []byte) (uint32, error) {
	if buf[0]&statusBitRDY != 0 {
		return 0, ErrNotReady
	}
	ppb := (uint32(buf[1]) << 16) | (uint32(buf[2]) << 8) | uint32(buf[3])
	// Recommended 1.5 second delay after TVOC read (runs asynchronously)
	s.scheduleDelay(ctx, s.config.ReadDelay)
	return ppb, nil
}

func (s *AGS02MA) ReadVersion(ctx context.Context) (int, error) {
	buf, err := s.command(ctx, regVersion)
	if err != nil {
		return 0, err
	}
	return int(buf[3]), nil
}

func (s *AGS02MA) ReadResistance(ctx context.Context) (int, error) {
	buf, err := s.command(ctx, regResistance)
	if err != nil {
		return 0, err
	}
	// Recommended 1.5 second delay after resistance read (runs asynchronously)
	s.scheduleDelay(ctx, s.config.ReadDelay)
	return int(buf[3]), nil
}

func (s *AGS02MA) Calibrate(ctx context.Context) error {
	if _, err := s.command(ctx, regCalibrate); err != nil {
		return err
	}
	s.scheduleDelay(ctx, s.config.ReadDelay)
	return nil
}

// command writes reg, waits TxDelay and reads the CRC checked response.
func (s *AGS02MA) command(ctx context.Context, reg byte) ([]byte, error) {
	if err := s.waitForDelay(ctx); err != nil {
		return nil, err
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	if err := s.write(ctx, uint64(reg), 1); err != nil {
		return nil, fmt.Errorf("ags02ma: write reg %#02x failed: %w", reg, err)
	}
	timer := time.NewTimer(s.config.TxDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	buf, err := s.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ags02ma: read failed: %w", err)
	}
	if crc := conv.CRC8(buf[:4]); crc != buf[4] {
		return nil, fmt.Errorf("ags02ma: crc mismatch: expected %#x, got %#x", buf[4], crc)
	}
	return buf, nil
}

func (s *AGS02MA) write(ctx context.Context, value uint64, byteCount int) error {
	return burst.Do(ctx, s.bus, s.addr, func(h *burst.Handle) error {
		return h.SetState(ctx, value, burst.ByteCount(byteCount))
	}, s.config.Burst...)
}

func (s *AGS02MA) read(ctx context.Context) ([]byte, error) {
	var raw uint64
	err := burst.Do(ctx, s.bus, s.addr, func(h *burst.Handle) error {
		var err error
		raw, err = h.GetState(ctx, burst.ByteCount(responseSize))
		return err
	}, s.config.Burst...)
	if err != nil {
		return nil, err
	}
	return conv.Encode(raw, responseSize)
}
