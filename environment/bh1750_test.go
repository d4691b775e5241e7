package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst/emulation"
)

func TestBH1750_GetLux(t *testing.T) {
	tests := []struct {
		name     string
		mode     BH1750Mode
		raw      []byte
		expected int
	}{
		{"low resolution", ModeSingleLowResolution, []byte{0x01, 0x2D}, 250},
		{"high resolution", ModeSingleHighResolution, []byte{0x00, 0x79}, 100},
		{"high resolution 2", ModeSingleHighResolution2, []byte{0x00, 0x79}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockBus)
			bus.On("TryLock").Return(true)
			bus.On("Unlock").Return()
			bus.On("WriteTo", mock.Anything, byte(BH1750AddrLow), []byte{byte(tt.mode)}).Return(nil).Once()
			bus.On("WriteThenReadFrom", mock.Anything, byte(BH1750AddrLow), []byte(nil), mock.Anything).Return(tt.raw, nil).Once()
			s := NewBH1750(bus, BH1750AddrLow)
			s.SetMode(tt.mode)
			lux, err := s.GetLux(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lux)
			bus.AssertExpectations(t)
			// command and read run in separate bursts
			bus.AssertNumberOfCalls(t, "Unlock", 2)
		})
	}
}

func TestBH1750_Commands(t *testing.T) {
	bus, err := emulation.New(emulation.State{BH1750AddrHigh: {emulation.DeviceState: 0}})
	require.NoError(t, err)
	s := NewBH1750(bus, BH1750AddrHigh)
	ctx := context.Background()
	require.NoError(t, s.PowerOn(ctx))
	v, _ := bus.Value(BH1750AddrHigh, emulation.DeviceState)
	assert.Equal(t, uint64(opCodePowerOn), v)
	require.NoError(t, s.Reset(ctx))
	v, _ = bus.Value(BH1750AddrHigh, emulation.DeviceState)
	assert.Equal(t, uint64(opCodeReset), v)
	require.NoError(t, s.PowerDown(ctx))
	v, _ = bus.Value(BH1750AddrHigh, emulation.DeviceState)
	assert.Equal(t, uint64(opCodePowerDown), v)
}

func TestBH1750_Cancelled(t *testing.T) {
	bus, err := emulation.New(emulation.State{BH1750AddrLow: {emulation.DeviceState: 0}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewBH1750(bus, BH1750AddrLow)
	s.SetMode(ModeSingleHighResolution)
	go cancel()
	_, err = s.GetLux(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, bus.Locked())
}
