package thermo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/onewire"
)

// MockBus is a mock implementation of onewire.Bus using testify/mock.
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBus) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBus) Select(ctx context.Context, addr onewire.Address) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockBus) SetWeakPullUp(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBus) SetStrongPullUp(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBus) WriteByte(ctx context.Context, b byte) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBus) ReadByte(ctx context.Context) (byte, error) {
	args := m.Called(ctx)
	return args.Get(0).(byte), args.Error(1)
}

// Crc8Step computes the real Dallas CRC so scripted scratchpad reads verify
// the same way they would against hardware.
func (m *MockBus) Crc8Step(crc, b byte) byte {
	return dallasCRCStep(crc, b)
}

func (m *MockBus) SearchFirst(ctx context.Context, family byte) (onewire.Address, error) {
	args := m.Called(ctx, family)
	return args.Get(0).(onewire.Address), args.Error(1)
}

func (m *MockBus) SearchNext(ctx context.Context) (onewire.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(onewire.Address), args.Error(1)
}

// dallasCRCStep is the shift-register form of the Dallas CRC-8
// (x^8 + x^5 + x^4 + 1, reflected).
func dallasCRCStep(crc, b byte) byte {
	crc ^= b
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0x8C
		} else {
			crc >>= 1
		}
	}
	return crc
}

// withCRC completes an 8-byte scratchpad payload with its CRC byte.
func withCRC(payload [8]byte) [9]byte {
	var crc byte
	for _, b := range payload {
		crc = dallasCRCStep(crc, b)
	}
	var out [9]byte
	copy(out[:], payload[:])
	out[8] = crc
	return out
}

// expectScratchpadRead scripts a complete read scratchpad transaction.
func expectScratchpadRead(bus *MockBus, addr onewire.Address, spad [9]byte) {
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, addr).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0xBE)).Return(nil).Once()
	for _, b := range spad {
		bus.On("ReadByte", mock.Anything).Return(b, nil).Once()
	}
}

const testAddr = onewire.Address(0xa70008021ae26310)

func TestDS1820_ReadTemperature(t *testing.T) {
	bus := &MockBus{}
	spad := withCRC([8]byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10})
	expectScratchpadRead(bus, testAddr, spad)
	d := NewDS1820(bus)

	temp, err := d.ReadTemperature(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, Temperature(-725), temp)
	bus.AssertExpectations(t)
}

func TestDS1820_ReadTemperature_CRCMismatch(t *testing.T) {
	bus := &MockBus{}
	spad := withCRC([8]byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10})
	spad[8] ^= 0x55 // corrupt the CRC byte
	expectScratchpadRead(bus, testAddr, spad)
	d := NewDS1820(bus)

	_, err := d.ReadTemperature(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrTemperatureUnavailable)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDS1820_ReadTemperature_MalformedScratchpad(t *testing.T) {
	bus := &MockBus{}
	spad := withCRC([8]byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x00})
	expectScratchpadRead(bus, testAddr, spad)
	d := NewDS1820(bus)

	_, err := d.ReadTemperature(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrTemperatureUnavailable)
	assert.ErrorIs(t, err, ErrMalformedScratchpad)
}

func TestDS1820_GetTemperature_SentinelOnFailure(t *testing.T) {
	t.Run("selection failure", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("Select", mock.Anything, testAddr).Return(onewire.ErrNoDevice).Once()
		d := NewDS1820(bus)

		assert.Equal(t, TemperatureInvalid, d.GetTemperature(context.Background(), testAddr))
	})
	t.Run("crc failure", func(t *testing.T) {
		bus := &MockBus{}
		spad := withCRC([8]byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10})
		spad[0] ^= 0x01 // corrupt a payload byte instead
		expectScratchpadRead(bus, testAddr, spad)
		d := NewDS1820(bus)

		assert.Equal(t, TemperatureInvalid, d.GetTemperature(context.Background(), testAddr))
	})
}

func TestDS1820_Convert(t *testing.T) {
	bus := &MockBus{}
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, onewire.AddressBroadcast).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0x44)).Return(nil).Once()
	bus.On("SetStrongPullUp", mock.Anything).Return(nil).Once()
	d := NewDS1820(bus)

	require.NoError(t, d.Convert(context.Background(), onewire.AddressBroadcast))
	bus.AssertExpectations(t)
}

func TestDS1820_Convert_AbsentDevice(t *testing.T) {
	bus := &MockBus{}
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, testAddr).Return(onewire.ErrNoDevice).Once()
	d := NewDS1820(bus)

	err := d.Convert(context.Background(), testAddr)
	assert.ErrorIs(t, err, onewire.ErrNoDevice)
	// the failure path must not leave the bus strongly pulled up
	bus.AssertNotCalled(t, "SetStrongPullUp", mock.Anything)
	bus.AssertNotCalled(t, "WriteByte", mock.Anything, mock.Anything)
}

func TestDS1820_SetAlarmThresholds(t *testing.T) {
	bus := &MockBus{}
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, testAddr).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0x4E)).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0x4B)).Return(nil).Once() // high 75, written first
	bus.On("WriteByte", mock.Anything, byte(0xC6)).Return(nil).Once() // low -70
	d := NewDS1820(bus)

	require.NoError(t, d.SetAlarmThresholds(context.Background(), testAddr, 75, -70))
	bus.AssertExpectations(t)
}

func TestDS1820_GetAlarmThresholds(t *testing.T) {
	bus := &MockBus{}
	spad := withCRC([8]byte{0x32, 0x00, 0x4B, 0xC6, 0xFF, 0xFF, 0x0C, 0x10})
	expectScratchpadRead(bus, testAddr, spad)
	d := NewDS1820(bus)

	high, low, err := d.GetAlarmThresholds(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, 75, high)
	assert.Equal(t, -70, low)
}

func TestDS1820_GetAlarmThresholds_PropagatesReadError(t *testing.T) {
	bus := &MockBus{}
	spad := withCRC([8]byte{0x32, 0x00, 0x4B, 0xC6, 0xFF, 0xFF, 0x0C, 0x10})
	spad[8] ^= 0xFF
	expectScratchpadRead(bus, testAddr, spad)
	d := NewDS1820(bus)

	_, _, err := d.GetAlarmThresholds(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDS1820_StoreConfig(t *testing.T) {
	bus := &MockBus{}
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, testAddr).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0x48)).Return(nil).Once()
	bus.On("SetStrongPullUp", mock.Anything).Return(nil).Once()
	d := NewDS1820(bus)

	require.NoError(t, d.StoreConfig(context.Background(), testAddr))
	bus.AssertExpectations(t)
}

func TestDS1820_RecallConfig(t *testing.T) {
	bus := &MockBus{}
	bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
	bus.On("Select", mock.Anything, testAddr).Return(nil).Once()
	bus.On("WriteByte", mock.Anything, byte(0xB8)).Return(nil).Once()
	d := NewDS1820(bus)

	require.NoError(t, d.RecallConfig(context.Background(), testAddr))
	// recall needs no EEPROM write power
	bus.AssertNotCalled(t, "SetStrongPullUp", mock.Anything)
}

func TestDS1820_GetPowerMode(t *testing.T) {
	tests := []struct {
		name     string
		bit      byte
		expected PowerMode
	}{
		{name: "parasite pulls the line low", bit: 0x00, expected: PowerParasite},
		{name: "external lets the line float", bit: 0x01, expected: PowerExternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := &MockBus{}
			bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
			bus.On("Select", mock.Anything, testAddr).Return(nil).Once()
			bus.On("WriteByte", mock.Anything, byte(0xB4)).Return(nil).Once()
			bus.On("ReadByte", mock.Anything).Return(test.bit, nil).Once()
			d := NewDS1820(bus)

			mode, err := d.GetPowerMode(context.Background(), testAddr)
			require.NoError(t, err)
			assert.Equal(t, test.expected, mode)
		})
	}
}

func TestDS1820_Search(t *testing.T) {
	a1 := onewire.Address(0x1200000000000110)
	a2 := onewire.Address(0x3400000000000210)

	t.Run("collects until exhausted", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("SearchFirst", mock.Anything, FamilyCode).Return(a1, nil).Once()
		bus.On("SearchNext", mock.Anything).Return(a2, nil).Once()
		bus.On("SearchNext", mock.Anything).Return(onewire.Address(0), onewire.ErrEndOfSearch).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus)

		found, err := d.Search(context.Background(), 8)
		require.NoError(t, err)
		assert.Equal(t, []onewire.Address{a1, a2}, found)
		bus.AssertExpectations(t)
	})

	t.Run("stops at capacity", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("SearchFirst", mock.Anything, FamilyCode).Return(a1, nil).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus)

		found, err := d.Search(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, []onewire.Address{a1}, found)
		bus.AssertNotCalled(t, "SearchNext", mock.Anything)
	})

	t.Run("zero capacity issues no search traffic", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus)

		found, err := d.Search(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, found)
		bus.AssertNotCalled(t, "SearchFirst", mock.Anything, mock.Anything)
		bus.AssertNotCalled(t, "ReadByte", mock.Anything)
		bus.AssertExpectations(t)
	})

	t.Run("negative capacity behaves like zero", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus)

		found, err := d.Search(context.Background(), -1)
		require.NoError(t, err)
		assert.Empty(t, found)
		bus.AssertNotCalled(t, "SearchFirst", mock.Anything, mock.Anything)
		bus.AssertExpectations(t)
	})

	t.Run("empty bus", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("SearchFirst", mock.Anything, FamilyCode).Return(onewire.Address(0), onewire.ErrEndOfSearch).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus)

		found, err := d.Search(context.Background(), 8)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("family filter override", func(t *testing.T) {
		bus := &MockBus{}
		bus.On("SetWeakPullUp", mock.Anything).Return(nil).Once()
		bus.On("SearchFirst", mock.Anything, byte(0)).Return(onewire.Address(0), onewire.ErrEndOfSearch).Once()
		bus.On("Reset", mock.Anything).Return(nil).Once()
		d := NewDS1820(bus, WithFamilyFilter(0))

		_, err := d.Search(context.Background(), 8)
		require.NoError(t, err)
		bus.AssertExpectations(t)
	})
}
