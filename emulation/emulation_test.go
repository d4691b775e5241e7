package emulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst"
)

func TestBus_ReadRegister(t *testing.T) {
	bus, err := New(State{0x4C: {Register(0x00): 0x12, Register(0x01): 0x23}})
	require.NoError(t, err)
	buf := make([]byte, 1)
	require.NoError(t, bus.WriteThenReadFrom(context.Background(), 0x4C, []byte{0x01}, buf))
	assert.Equal(t, []byte{0x23}, buf)
}

func TestBus_ReadMultiByteRegister(t *testing.T) {
	bus, err := New(State{0x4C: {Register(0x00): 0x1234}})
	require.NoError(t, err)
	buf := make([]byte, 2)
	require.NoError(t, bus.WriteThenReadFrom(context.Background(), 0x4C, []byte{0x00}, buf))
	assert.Equal(t, []byte{0x12, 0x34}, buf)

	// the value does not fit into a single byte
	err = bus.WriteThenReadFrom(context.Background(), 0x4C, []byte{0x00}, make([]byte, 1))
	assert.Error(t, err)
}

func TestBus_WriteRegister(t *testing.T) {
	bus, err := New(State{0x4C: {}})
	require.NoError(t, err)
	require.NoError(t, bus.WriteTo(context.Background(), 0x4C, []byte{0x00, 0x12, 0x34}))
	assert.Equal(t, Device{Register(0x00): 0x1234}, bus.Device(0x4C))
}

func TestBus_RegisterPointer(t *testing.T) {
	bus, err := New(State{0x4D: {Register(0x01): 0x40}})
	require.NoError(t, err)
	ctx := context.Background()

	// plain read without a selected register
	assert.ErrorIs(t, bus.WriteThenReadFrom(ctx, 0x4D, nil, make([]byte, 1)), ErrNoRegister)

	require.NoError(t, bus.WriteTo(ctx, 0x4D, []byte{0x01}))
	buf := make([]byte, 1)
	require.NoError(t, bus.WriteThenReadFrom(ctx, 0x4D, nil, buf))
	assert.Equal(t, byte(0x40), buf[0])
	// pointer write leaves the value untouched
	assert.Equal(t, Device{Register(0x01): 0x40}, bus.Device(0x4D))
}

func TestBus_State(t *testing.T) {
	bus, err := New(State{0x70: {DeviceState: 0x01}})
	require.NoError(t, err)
	ctx := context.Background()

	buf := make([]byte, 1)
	require.NoError(t, bus.WriteThenReadFrom(ctx, 0x70, nil, buf))
	assert.Equal(t, byte(0x01), buf[0])

	require.NoError(t, bus.WriteTo(ctx, 0x70, []byte{0x01, 0x02}))
	v, ok := bus.Value(0x70, DeviceState)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x0102), v)
}

func TestBus_Errors(t *testing.T) {
	bus, err := New(State{0x4C: {}})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, bus.WriteTo(ctx, 0x12, []byte{0x00, 0x01}), ErrNoDevice)
	assert.ErrorIs(t, bus.WriteThenReadFrom(ctx, 0x12, []byte{0x00}, make([]byte, 1)), ErrNoDevice)
	assert.ErrorIs(t, bus.WriteThenReadFrom(ctx, 0x4C, []byte{0x05}, make([]byte, 1)), ErrNoRegister)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, bus.WriteTo(cancelled, 0x4C, []byte{0x00, 0x01}), context.Canceled)
}

func TestBus_FailNext(t *testing.T) {
	bus, err := New(State{0x4C: {Register(0x00): 0x12}})
	require.NoError(t, err)
	ctx := context.Background()
	bus.FailNext(2)
	buf := make([]byte, 1)
	assert.ErrorIs(t, bus.WriteThenReadFrom(ctx, 0x4C, []byte{0x00}, buf), ErrInjected)
	assert.ErrorIs(t, bus.WriteTo(ctx, 0x4C, []byte{0x00, 0x01}), ErrInjected)
	assert.NoError(t, bus.WriteThenReadFrom(ctx, 0x4C, []byte{0x00}, buf))
	assert.Equal(t, 2, bus.Stats().Faults)
}

func TestBus_LockChance(t *testing.T) {
	_, err := New(State{}, WithLockChance(101))
	assert.ErrorIs(t, err, i2cburst.ErrValidation)
	_, err = New(State{}, WithLockChance(-1))
	assert.ErrorIs(t, err, i2cburst.ErrValidation)

	never, err := New(State{}, WithLockChance(0))
	require.NoError(t, err)
	for range 1000 {
		require.False(t, never.TryLock())
	}

	always, err := New(State{})
	require.NoError(t, err)
	assert.True(t, always.TryLock())
	// a held lock is never handed out twice
	assert.False(t, always.TryLock())
	always.Unlock()
	assert.True(t, always.TryLock())
	stats := always.Stats()
	assert.Equal(t, 3, stats.LockAttempts)
	assert.Equal(t, 2, stats.Locks)
	assert.Equal(t, 1, stats.Unlocks)
}

func TestBus_SeededContention(t *testing.T) {
	outcomes := func() []bool {
		bus, err := New(State{}, WithLockChance(50), WithSeed(42))
		require.NoError(t, err)
		var res []bool
		for range 64 {
			ok := bus.TryLock()
			if ok {
				bus.Unlock()
			}
			res = append(res, ok)
		}
		return res
	}
	first := outcomes()
	assert.Equal(t, first, outcomes())
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}

func TestBus_StateIsCopied(t *testing.T) {
	state := State{0x4C: {Register(0x00): 0x00}}
	bus, err := New(state)
	require.NoError(t, err)
	require.NoError(t, bus.WriteTo(context.Background(), 0x4C, []byte{0x00, 0x12}))
	assert.Equal(t, uint64(0x00), state[0x4C][Register(0x00)])
}
