package burst

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/conv"
	"github.com/mklimuk/i2cburst/emulation"
)

var errRemoteIO = errors.New("remote I/O error")

func lockedMock() *MockBus {
	bus := new(MockBus)
	bus.On("TryLock").Return(true).Once()
	bus.On("Unlock").Return().Once()
	return bus
}

func TestHandle_ReadRegisterMultiByte(t *testing.T) {
	bus, err := emulation.New(emulation.State{0x4C: {emulation.Register(0x00): 0x1234}})
	require.NoError(t, err)
	ctx := context.Background()
	err = Do(ctx, bus, 0x4C, func(h *Handle) error {
		v, err := h.ReadRegister(ctx, 0x00, ByteCount(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1234), v)
		return nil
	})
	require.NoError(t, err)
}

func TestHandle_WriteThenReadBack(t *testing.T) {
	bus, err := emulation.New(emulation.State{0x4C: {emulation.Register(0x00): 0x0000}})
	require.NoError(t, err)
	ctx := context.Background()
	err = Do(ctx, bus, 0x4C, func(h *Handle) error {
		require.NoError(t, h.WriteRegister(ctx, 0x00, 0x1234, ByteCount(2)))
		v, err := h.ReadRegister(ctx, 0x00, ByteCount(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1234), v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, emulation.Device{emulation.Register(0x00): 0x1234}, bus.Device(0x4C))
}

func TestHandle_MixedAccess(t *testing.T) {
	bus, err := emulation.New(emulation.State{0x4C: {
		emulation.Register(0x00): 0x12,
		emulation.Register(0x01): 0x00,
		emulation.Register(0x10): 0x00,
	}})
	require.NoError(t, err)
	ctx := context.Background()
	var read uint64
	err = Do(ctx, bus, 0x4C, func(h *Handle) error {
		var err error
		if read, err = h.ReadRegister(ctx, 0x00); err != nil {
			return err
		}
		if err = h.WriteRegister(ctx, 0x01, 0x34); err != nil {
			return err
		}
		return h.WriteRegister(ctx, 0x10, 0x56)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x12), read)
	assert.Equal(t, emulation.Device{
		emulation.Register(0x00): 0x12,
		emulation.Register(0x01): 0x34,
		emulation.Register(0x10): 0x56,
	}, bus.Device(0x4C))
}

func TestHandle_State(t *testing.T) {
	bus, err := emulation.New(emulation.State{0x70: {emulation.DeviceState: 0x01}})
	require.NoError(t, err)
	ctx := context.Background()
	err = Do(ctx, bus, 0x70, func(h *Handle) error {
		v, err := h.GetState(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x01), v)
		require.NoError(t, h.SetState(ctx, 0x0102, ByteCount(2)))
		v, err = h.GetState(ctx, ByteCount(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x0102), v)
		return nil
	})
	require.NoError(t, err)
	v, ok := bus.Value(0x70, emulation.DeviceState)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x0102), v)
}

func TestHandle_StateWireFormat(t *testing.T) {
	bus := lockedMock()
	ctx := context.Background()
	// state access sends no register address byte
	bus.On("WriteThenReadFrom", mock.Anything, byte(0x70), []byte(nil), mock.Anything).
		Return([]byte{0xAB, 0xCD}, nil).Once()
	bus.On("WriteTo", mock.Anything, byte(0x70), []byte{0x00, 0x00, 0x01, 0x02}).Return(nil).Once()
	err := Do(ctx, bus, 0x70, func(h *Handle) error {
		v, err := h.GetState(ctx, ByteCount(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(0xABCD), v)
		return h.SetState(ctx, 0x0102, ByteCount(4))
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestHandle_RegisterWireFormat(t *testing.T) {
	bus := lockedMock()
	ctx := context.Background()
	bus.On("WriteThenReadFrom", mock.Anything, byte(0x4C), []byte{0x10}, mock.Anything).
		Return([]byte{0x12, 0x34, 0x56, 0x78}, nil).Once()
	bus.On("WriteTo", mock.Anything, byte(0x4C), []byte{0x10, 0x12, 0x34}).Return(nil).Once()
	err := Do(ctx, bus, 0x4C, func(h *Handle) error {
		v, err := h.ReadRegister(ctx, 0x10, ByteCount(4))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x12345678), v)
		return h.WriteRegister(ctx, 0x10, 0x1234, ByteCount(2))
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestHandle_ZeroTries(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		op   func(h *Handle) error
	}{
		{"read register", func(h *Handle) error {
			_, err := h.ReadRegister(ctx, 0x00, MaxTries(0))
			return err
		}},
		{"write register", func(h *Handle) error {
			return h.WriteRegister(ctx, 0x00, 0x12, MaxTries(0))
		}},
		{"get state", func(h *Handle) error {
			_, err := h.GetState(ctx, MaxTries(0))
			return err
		}},
		{"set state", func(h *Handle) error {
			return h.SetState(ctx, 0x12, MaxTries(0))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// any transport call would fail the mock
			bus := lockedMock()
			var opErr error
			err := Do(ctx, bus, 0x4C, func(h *Handle) error {
				opErr = tt.op(h)
				return nil
			})
			require.NoError(t, err)
			assert.ErrorIs(t, opErr, i2cburst.ErrAccessExhausted)
			var aerr *i2cburst.AccessError
			require.ErrorAs(t, opErr, &aerr)
			assert.Zero(t, aerr.Tries)
			bus.AssertExpectations(t)
			bus.AssertNotCalled(t, "WriteTo", mock.Anything, mock.Anything, mock.Anything)
			bus.AssertNotCalled(t, "WriteThenReadFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandle_RetryTolerance(t *testing.T) {
	for k := 0; k < 4; k++ {
		bus := lockedMock()
		ctx := context.Background()
		if k > 0 {
			bus.On("WriteThenReadFrom", mock.Anything, byte(0x4C), []byte{0x00}, mock.Anything).
				Return(nil, errRemoteIO).Times(k)
		}
		bus.On("WriteThenReadFrom", mock.Anything, byte(0x4C), []byte{0x00}, mock.Anything).
			Return([]byte{0x12}, nil).Once()
		var value uint64
		err := Do(ctx, bus, 0x4C, func(h *Handle) error {
			var err error
			value, err = h.ReadRegister(ctx, 0x00, MaxTries(4))
			return err
		}, WithBackoff(time.Microsecond))
		require.NoError(t, err)
		assert.Equal(t, uint64(0x12), value)
		bus.AssertNumberOfCalls(t, "WriteThenReadFrom", k+1)
		bus.AssertExpectations(t)
	}
}

func TestHandle_WriteRetryTolerance(t *testing.T) {
	bus := lockedMock()
	ctx := context.Background()
	bus.On("WriteTo", mock.Anything, byte(0x4C), []byte{0x01, 0x12}).Return(i2cburst.ErrBusBusy).Twice()
	bus.On("WriteTo", mock.Anything, byte(0x4C), []byte{0x01, 0x12}).Return(nil).Once()
	err := Do(ctx, bus, 0x4C, func(h *Handle) error {
		return h.WriteRegister(ctx, 0x01, 0x12)
	}, WithBackoff(time.Microsecond))
	require.NoError(t, err)
	bus.AssertNumberOfCalls(t, "WriteTo", 3)
}

func TestHandle_Exhausted(t *testing.T) {
	logger, buf := captureLogger()
	bus := lockedMock()
	ctx := context.Background()
	bus.On("WriteThenReadFrom", mock.Anything, byte(0x4C), []byte{0x00}, mock.Anything).
		Return(nil, errRemoteIO).Times(3)
	err := Do(ctx, bus, 0x4C, func(h *Handle) error {
		_, err := h.ReadRegister(ctx, 0x00, MaxTries(3))
		return err
	}, WithBackoff(time.Microsecond), WithLogger(logger))

	assert.ErrorIs(t, err, i2cburst.ErrAccessExhausted)
	assert.ErrorIs(t, err, errRemoteIO)
	var aerr *i2cburst.AccessError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 3, aerr.Tries)
	assert.Equal(t, "unable to read register 0x00 after 3 attempts: remote I/O error", aerr.Error())

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "failed to read register 0x00"))
	assert.Contains(t, out, "try=1")
	assert.Contains(t, out, "try=3")
	assert.Contains(t, out, "giving up")
	bus.AssertExpectations(t)
}

func TestHandle_DefaultTries(t *testing.T) {
	bus, err := emulation.New(emulation.State{})
	require.NoError(t, err)
	ctx := context.Background()
	err = Do(ctx, bus, 0x4C, func(h *Handle) error {
		_, err := h.ReadRegister(ctx, 0x00)
		var aerr *i2cburst.AccessError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, 2, aerr.Tries)
		assert.ErrorIs(t, err, emulation.ErrNoDevice)

		err = h.SetState(ctx, 0x01)
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, 1, aerr.Tries)
		return nil
	}, WithReadTries(2), WithWriteTries(1), WithBackoff(0))
	require.NoError(t, err)
	stats := bus.Stats()
	assert.Equal(t, 2, stats.Reads)
	assert.Equal(t, 1, stats.Writes)
}

func TestHandle_Validation(t *testing.T) {
	ctx := context.Background()
	bus := lockedMock()
	err := Do(ctx, bus, 0x70, func(h *Handle) error {
		_, err := h.ReadRegister(ctx, 0xFFFF)
		assert.ErrorIs(t, err, i2cburst.ErrValidation)
		_, err = h.ReadRegister(ctx, -1)
		assert.ErrorIs(t, err, i2cburst.ErrValidation)
		err = h.WriteRegister(ctx, 0x100, 0x01)
		assert.ErrorIs(t, err, i2cburst.ErrValidation)
		err = h.WriteRegister(ctx, 0x00, 0x100)
		assert.ErrorIs(t, err, conv.ErrRange)
		err = h.SetState(ctx, 0x0102)
		assert.ErrorIs(t, err, conv.ErrRange)
		_, err = h.GetState(ctx, ByteCount(0))
		assert.ErrorIs(t, err, conv.ErrByteCount)
		_, err = h.GetState(ctx, ByteCount(9))
		assert.ErrorIs(t, err, conv.ErrByteCount)
		_, err = h.GetState(ctx, MaxTries(-1))
		assert.ErrorIs(t, err, i2cburst.ErrValidation)
		return nil
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "WriteTo", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertNotCalled(t, "WriteThenReadFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_CancelledDuringBackoff(t *testing.T) {
	bus := lockedMock()
	ctx, cancel := context.WithCancel(context.Background())
	bus.On("WriteTo", mock.Anything, byte(0x4C), mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(errRemoteIO).Once()
	err := Do(ctx, bus, 0x4C, func(h *Handle) error {
		return h.WriteRegister(ctx, 0x00, 0x01, MaxTries(5))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, i2cburst.ErrAccessExhausted)
	bus.AssertNumberOfCalls(t, "WriteTo", 1)
	bus.AssertNumberOfCalls(t, "Unlock", 1)
}

func TestHandle_AddressCheck(t *testing.T) {
	bus, err := emulation.New(emulation.State{0x27: {emulation.DeviceState: 0}})
	require.NoError(t, err)
	ctx := context.Background()
	err = Do(ctx, bus, 0x27, func(h *Handle) error {
		return h.Probe(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Stats().Writes)

	logger, _ := captureLogger()
	err = Do(ctx, bus, 0x28, func(h *Handle) error {
		return h.Probe(ctx)
	}, WithLogger(logger))
	assert.ErrorIs(t, err, emulation.ErrNoDevice)
	assert.ErrorIs(t, err, i2cburst.ErrAccessExhausted)
	assert.Equal(t, 2, bus.Stats().Writes)
}
