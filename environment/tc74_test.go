package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/emulation"
)

func TestTC74_GetTemperature(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint64
		expected float32
	}{
		{"positive", 0x19, 25},
		{"zero", 0x00, 0},
		{"negative", 0xF6, -10},
		{"minimum", 0x80, -128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := emulation.New(emulation.State{
				0x4D: {emulation.Register(0x00): tt.raw, emulation.Register(0x01): 0x40},
			})
			require.NoError(t, err)
			s := NewTC74(bus)
			temp, err := s.GetTemperature(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, temp)
			// both registers are read under one lock
			assert.Equal(t, 1, bus.Stats().Locks)
			assert.Equal(t, 2, bus.Stats().Reads)
		})
	}
}

func TestTC74_NotReady(t *testing.T) {
	bus, err := emulation.New(emulation.State{
		0x48: {emulation.Register(0x00): 0x19, emulation.Register(0x01): 0x40},
	})
	require.NoError(t, err)
	s := NewTC74(bus, WithAddress(0x48))
	ctx := context.Background()
	temp, err := s.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(25), temp)

	// the previous reading is kept until data is ready again
	require.NoError(t, burst.WriteDeviceRegister(ctx, bus, 0x48, 0x01, 0x00))
	require.NoError(t, burst.WriteDeviceRegister(ctx, bus, 0x48, 0x00, 0x1E))
	temp, err = s.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(25), temp)

	cfg, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), cfg)
}

func TestTC74_Standby(t *testing.T) {
	bus, err := emulation.New(emulation.State{
		0x4D: {emulation.Register(0x00): 0x19, emulation.Register(0x01): 0x40},
	})
	require.NoError(t, err)
	s := NewTC74(bus)
	require.NoError(t, s.SetStandby(context.Background(), true))
	v, _ := bus.Value(0x4D, emulation.Register(0x01))
	assert.Equal(t, uint64(0x80), v)
	require.NoError(t, s.SetStandby(context.Background(), false))
	v, _ = bus.Value(0x4D, emulation.Register(0x01))
	assert.Equal(t, uint64(0x00), v)
}

func TestTC74_Absent(t *testing.T) {
	bus, err := emulation.New(emulation.State{})
	require.NoError(t, err)
	s := NewTC74(bus, WithBurstOptions(burst.WithReadTries(2), burst.WithBackoff(0)))
	_, err = s.GetTemperature(context.Background())
	assert.ErrorIs(t, err, i2cburst.ErrAccessExhausted)
	assert.ErrorIs(t, err, emulation.ErrNoDevice)
	assert.Equal(t, 2, bus.Stats().Reads)
	assert.False(t, bus.Locked())
}
