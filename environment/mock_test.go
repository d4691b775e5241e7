package environment

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBus is a testify mock of i2cburst.Bus
type MockBus struct {
	mock.Mock
}

func (m *MockBus) TryLock() bool {
	return m.Called().Bool(0)
}

func (m *MockBus) Unlock() {
	m.Called()
}

func (m *MockBus) WriteTo(ctx context.Context, address byte, buffer []byte) error {
	return m.Called(ctx, address, buffer).Error(0)
}

func (m *MockBus) WriteThenReadFrom(ctx context.Context, address byte, out []byte, in []byte) error {
	args := m.Called(ctx, address, out, in)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(in) {
		copy(in, data)
	}
	return args.Error(1)
}
