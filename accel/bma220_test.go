package accel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/emulation"
)

func TestBMA220_InitMotionDetection(t *testing.T) {
	bus, err := emulation.New(emulation.State{addr: {}})
	require.NoError(t, err)
	s := NewBMA220(bus)
	require.NoError(t, s.InitMotionDetection(context.Background()))
	assert.Equal(t, emulation.Device{
		emulation.Register(regRange):         0x03,
		emulation.Register(regLatch):         latchPermanent,
		emulation.Register(regSlopeDet):      0b00111000,
		emulation.Register(regSlopeSettings): 0x45,
		emulation.Register(regWatchdog):      0x06,
	}, bus.Device(addr))
	assert.Equal(t, 1, bus.Stats().Locks)
}

func TestBMA220_InitRetried(t *testing.T) {
	bus, err := emulation.New(emulation.State{addr: {}})
	require.NoError(t, err)
	// the first write fails and the whole setup is replayed
	bus.FailNext(1)
	s := NewBMA220(bus, burst.BatchTries(2))
	require.NoError(t, s.InitMotionDetection(context.Background()))
	assert.Equal(t, 2, bus.Stats().Unlocks)
	assert.Equal(t, 6, bus.Stats().Writes)

	bus, err = emulation.New(emulation.State{addr: {}})
	require.NoError(t, err)
	bus.FailNext(10)
	s = NewBMA220(bus, burst.BatchTries(2))
	err = s.InitMotionDetection(context.Background())
	assert.ErrorIs(t, err, emulation.ErrInjected)
	assert.Equal(t, 2, bus.Stats().Unlocks)
}

func TestBMA220_MotionInterrupt(t *testing.T) {
	bus, err := emulation.New(emulation.State{addr: {
		emulation.Register(regInterrupts): 0x01,
		emulation.Register(regLatch):      latchPermanent,
	}})
	require.NoError(t, err)
	s := NewBMA220(bus)
	ctx := context.Background()
	motion, err := s.CheckMotionInterrupt(ctx)
	require.NoError(t, err)
	assert.True(t, motion)

	require.NoError(t, s.ResetMotionInterrupt(ctx))
	v, _ := bus.Value(addr, emulation.Register(regLatch))
	assert.Equal(t, uint64(latchReset), v)

	require.NoError(t, burst.WriteDeviceRegister(ctx, bus, addr, regInterrupts, 0x00))
	motion, err = s.CheckMotionInterrupt(ctx)
	require.NoError(t, err)
	assert.False(t, motion)
}
