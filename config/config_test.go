package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/emulation"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, AdapterGeneric, c.Adapter)
	assert.Equal(t, burst.DefaultTimeout, c.Timeout.Duration)
	assert.Len(t, c.BurstOptions(), 4)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.yaml")
	err := os.WriteFile(path, []byte(`
adapter: emulated
timeout: none
poll_interval: 2ms
read_tries: 7
backoff: 5ms
emulation:
  lock_chance: 30
  seed: 42
  state:
    "0x4C": {"0x00": 25, "0x01": 0x40}
    "0x70": {state: 1}
`), 0o644)
	require.NoError(t, err)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterEmulated, c.Adapter)
	assert.True(t, c.Timeout.Disabled)
	assert.Equal(t, 2*time.Millisecond, c.PollInterval.Duration)
	assert.Equal(t, 7, c.ReadTries)
	assert.Equal(t, burst.DefaultWriteTries, c.WriteTries)
	assert.Equal(t, "/dev/i2c-1", c.Device)
	require.NotNil(t, c.Emulation.Seed)
	assert.Equal(t, uint64(42), *c.Emulation.Seed)

	state, err := c.EmulationState()
	require.NoError(t, err)
	assert.Equal(t, emulation.State{
		0x4C: {emulation.Register(0x00): 25, emulation.Register(0x01): 0x40},
		0x70: {emulation.DeviceState: 1},
	}, state)
	assert.Len(t, c.EmulationOptions(), 2)
}

func TestConfig_DrivesEmulatedBurst(t *testing.T) {
	c, err := Parse([]byte(`
timeout: 100ms
emulation:
  state:
    "76": {"0": 25}
`))
	require.NoError(t, err)
	state, err := c.EmulationState()
	require.NoError(t, err)
	bus, err := emulation.New(state, c.EmulationOptions()...)
	require.NoError(t, err)
	v, err := burst.ReadDeviceRegister(t.Context(), bus, 0x4C, 0x00)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), v)
	// options built from the file are accepted by the burst
	_, err = burst.New(bus, 0x4C, c.BurstOptions()...)
	assert.NoError(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown adapter", "adapter: ftdi"},
		{"zero timeout", "timeout: 0s"},
		{"negative tries", "read_tries: -1"},
		{"lock chance", "emulation: {lock_chance: 101}"},
		{"device key", `emulation: {state: {"0x1FF": {"0": 1}}}`},
		{"register key", `emulation: {state: {"0x4C": {"reg": 1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.ErrorIs(t, err, i2cburst.ErrValidation)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("timeout: soon"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
