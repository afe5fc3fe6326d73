package thermo

import (
	"context"

	"github.com/mklimuk/onewire"
)

// TemperatureBehaviorFunc defines the function signature for mock
// temperature behavior. It returns the reading in tenths of a degree
// Celsius or an error.
type TemperatureBehaviorFunc func(ctx context.Context, addr onewire.Address) (Temperature, error)

// MockThermometer is a mock implementation of Thermometer that uses a
// behavior function to produce results without requiring any hardware.
type MockThermometer struct {
	behavior TemperatureBehaviorFunc
}

// NewMockThermometer creates a new mock thermometer with the given behavior
// function. The behavior is called by both GetTemperature and
// ReadTemperature.
//
// Example usage:
//
//	therm := NewMockThermometer(func(ctx context.Context, addr onewire.Address) (thermo.Temperature, error) {
//		return 225, nil // 22.5 degC
//	})
func NewMockThermometer(behavior TemperatureBehaviorFunc) *MockThermometer {
	return &MockThermometer{behavior: behavior}
}

// ReadTemperature returns the reading produced by the behavior function.
func (m *MockThermometer) ReadTemperature(ctx context.Context, addr onewire.Address) (Temperature, error) {
	return m.behavior(ctx, addr)
}

// GetTemperature returns the behavior's reading, collapsing any error into
// TemperatureInvalid the way the real driver does.
func (m *MockThermometer) GetTemperature(ctx context.Context, addr onewire.Address) Temperature {
	t, err := m.behavior(ctx, addr)
	if err != nil {
		return TemperatureInvalid
	}
	return t
}

var _ Thermometer = &MockThermometer{}
