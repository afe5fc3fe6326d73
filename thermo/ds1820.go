package thermo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/onewire"
)

// DS1820 command bytes
const (
	cmdConvertTemperature = 0x44
	cmdScratchpadWrite    = 0x4E
	cmdScratchpadStore    = 0x48
	cmdScratchpadRecall   = 0xB8
	cmdScratchpadRead     = 0xBE
	cmdPowerSupplyRead    = 0xB4
)

// FamilyCode is the ROM family code of the DS1820/DS18S20 9-bit parts.
const FamilyCode byte = 0x10

// ConvertDelay is the minimum time the bus must stay strongly pulled up
// after Convert before scratchpad reads return a fresh value.
const ConvertDelay = 500 * time.Millisecond

// StorePowerDelay is the minimum strong pull-up time after StoreConfig for
// the EEPROM write to complete.
const StorePowerDelay = 10 * time.Millisecond

// ErrCRCMismatch means the scratchpad arrived corrupted; none of its bytes
// can be trusted.
var ErrCRCMismatch = errors.New("scratchpad CRC mismatch")

// ErrMalformedScratchpad means the scratchpad passed its CRC but carries
// structurally invalid calibration data.
var ErrMalformedScratchpad = errors.New("malformed scratchpad")

// ErrTemperatureUnavailable is the umbrella returned by ReadTemperature for
// any lower-level failure, so polling callers need a single check. The cause
// stays wrapped underneath for errors.Is.
var ErrTemperatureUnavailable = errors.New("temperature unavailable")

// Thermometer is the read surface of the driver, satisfied by DS1820 and by
// MockThermometer for hardware-free tests.
type Thermometer interface {
	GetTemperature(ctx context.Context, addr onewire.Address) Temperature
	ReadTemperature(ctx context.Context, addr onewire.Address) (Temperature, error)
}

// DS1820 drives the Dallas DS1820/DS18S20 1-wire digital thermometer family.
// See: https://www.analog.com/media/en/technical-documentation/data-sheets/DS18S20.pdf
//
// Usage: discover devices with Search, start a measurement with Convert,
// keep the bus strongly pulled up for ConvertDelay, then read with
// GetTemperature or ReadTemperature. The driver holds no device state;
// every operation is a complete bus transaction against the given address.
type DS1820 struct {
	bus    onewire.Bus
	family byte
}

type DS1820Config struct {
	Family byte
}

type DS1820ConfigOption func(*DS1820Config)

// WithFamilyFilter sets the family code seeded into the ROM search.
// 0 searches every device on the bus regardless of family.
func WithFamilyFilter(family byte) DS1820ConfigOption {
	return func(c *DS1820Config) {
		c.Family = family
	}
}

// NewDS1820 creates a driver on the given bus. By default Search is
// restricted to the DS1820 family code.
func NewDS1820(bus onewire.Bus, opts ...DS1820ConfigOption) *DS1820 {
	config := &DS1820Config{
		Family: FamilyCode,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &DS1820{bus: bus, family: config.Family}
}

// Init prepares the bus for communication.
func (d *DS1820) Init(ctx context.Context) error {
	if err := d.bus.Init(ctx); err != nil {
		return fmt.Errorf("ds1820: could not init bus: %w", err)
	}
	if err := d.bus.Reset(ctx); err != nil {
		return fmt.Errorf("ds1820: could not reset bus: %w", err)
	}
	return nil
}

// Convert starts a temperature conversion on the addressed device, or on all
// devices with onewire.AddressBroadcast. On success the bus is left strongly
// pulled up; the caller must hold that state for at least ConvertDelay
// before reading. The pull-up is not touched when selection fails.
func (d *DS1820) Convert(ctx context.Context, addr onewire.Address) error {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return fmt.Errorf("ds1820: convert %s: %w", addr, err)
	}
	if err := d.bus.WriteByte(ctx, cmdConvertTemperature); err != nil {
		return fmt.Errorf("ds1820: could not issue convert command: %w", err)
	}
	if err := d.bus.SetStrongPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not power conversion: %w", err)
	}
	return nil
}

// ReadTemperature reads and decodes the scratchpad of the addressed device.
// All failures, selection, CRC or calibration, are reported as
// ErrTemperatureUnavailable with the cause wrapped underneath.
func (d *DS1820) ReadTemperature(ctx context.Context, addr onewire.Address) (Temperature, error) {
	spad, err := d.ReadScratchpad(ctx, addr)
	if err != nil {
		return TemperatureInvalid, fmt.Errorf("%w: %w", ErrTemperatureUnavailable, err)
	}
	t, err := spad.Temperature()
	if err != nil {
		return TemperatureInvalid, fmt.Errorf("%w: %w", ErrTemperatureUnavailable, err)
	}
	return t, nil
}

// GetTemperature is the polling form of ReadTemperature: it returns
// TemperatureInvalid on any failure instead of an error, so a measurement
// loop needs a single comparison and never aborts.
func (d *DS1820) GetTemperature(ctx context.Context, addr onewire.Address) Temperature {
	t, err := d.ReadTemperature(ctx, addr)
	if err != nil {
		return TemperatureInvalid
	}
	return t
}

// ReadScratchpad transfers the full 9-byte scratchpad and verifies its CRC.
// There is no retry here; retry on ErrCRCMismatch is a caller policy.
func (d *DS1820) ReadScratchpad(ctx context.Context, addr onewire.Address) (Scratchpad, error) {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return Scratchpad{}, fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return Scratchpad{}, fmt.Errorf("ds1820: read scratchpad %s: %w", addr, err)
	}
	if err := d.bus.WriteByte(ctx, cmdScratchpadRead); err != nil {
		return Scratchpad{}, fmt.Errorf("ds1820: could not issue read scratchpad command: %w", err)
	}
	var raw [scratchpadLength]byte
	var crc byte
	for i := range raw {
		b, err := d.bus.ReadByte(ctx)
		if err != nil {
			return Scratchpad{}, fmt.Errorf("ds1820: scratchpad byte %d: %w", i, err)
		}
		raw[i] = b
		if i != scratchpadCRCPos {
			crc = d.bus.Crc8Step(crc, b)
		}
	}
	if crc != raw[scratchpadCRCPos] {
		return Scratchpad{}, fmt.Errorf("ds1820: computed %#02x, read %#02x: %w", crc, raw[scratchpadCRCPos], ErrCRCMismatch)
	}
	return scratchpadFromBytes(raw), nil
}

// WriteScratchpad writes the two user bytes, high threshold first. There is
// no readback; callers wanting certainty follow up with ReadScratchpad.
func (d *DS1820) WriteScratchpad(ctx context.Context, addr onewire.Address, high, low byte) error {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return fmt.Errorf("ds1820: write scratchpad %s: %w", addr, err)
	}
	for _, b := range []byte{cmdScratchpadWrite, high, low} {
		if err := d.bus.WriteByte(ctx, b); err != nil {
			return fmt.Errorf("ds1820: could not write scratchpad: %w", err)
		}
	}
	return nil
}

// SetAlarmThresholds programs the high and low alarm registers in whole
// degrees Celsius. Values must be representable in 7 bits (-127..127);
// larger magnitudes truncate silently.
func (d *DS1820) SetAlarmThresholds(ctx context.Context, addr onewire.Address, high, low int) error {
	return d.WriteScratchpad(ctx, addr, encodeThreshold(high), encodeThreshold(low))
}

// GetAlarmThresholds reads back the alarm registers in whole degrees.
func (d *DS1820) GetAlarmThresholds(ctx context.Context, addr onewire.Address) (high, low int, err error) {
	spad, err := d.ReadScratchpad(ctx, addr)
	if err != nil {
		return 0, 0, err
	}
	high, low = spad.Thresholds()
	return high, low, nil
}

// StoreConfig copies the scratchpad user bytes into the device EEPROM. On
// success the bus is left strongly pulled up; the caller must hold that
// state for at least StorePowerDelay.
func (d *DS1820) StoreConfig(ctx context.Context, addr onewire.Address) error {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return fmt.Errorf("ds1820: store config %s: %w", addr, err)
	}
	if err := d.bus.WriteByte(ctx, cmdScratchpadStore); err != nil {
		return fmt.Errorf("ds1820: could not issue store command: %w", err)
	}
	if err := d.bus.SetStrongPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not power EEPROM write: %w", err)
	}
	return nil
}

// RecallConfig loads the EEPROM user bytes back into the scratchpad.
func (d *DS1820) RecallConfig(ctx context.Context, addr onewire.Address) error {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return fmt.Errorf("ds1820: recall config %s: %w", addr, err)
	}
	if err := d.bus.WriteByte(ctx, cmdScratchpadRecall); err != nil {
		return fmt.Errorf("ds1820: could not issue recall command: %w", err)
	}
	return nil
}

// PowerMode describes how a device is supplied.
type PowerMode int

const (
	// PowerParasite means the device steals power from the data line and
	// needs a strong pull-up during conversions and EEPROM writes.
	PowerParasite PowerMode = iota
	// PowerExternal means the device has its own supply pin.
	PowerExternal
)

func (m PowerMode) String() string {
	switch m {
	case PowerParasite:
		return "parasite"
	case PowerExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetPowerMode asks the addressed device how it is powered. A parasite
// powered device pulls the read slot low; an externally powered one lets
// the line float high.
func (d *DS1820) GetPowerMode(ctx context.Context, addr onewire.Address) (PowerMode, error) {
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return PowerParasite, fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	if err := d.bus.Select(ctx, addr); err != nil {
		return PowerParasite, fmt.Errorf("ds1820: power mode %s: %w", addr, err)
	}
	if err := d.bus.WriteByte(ctx, cmdPowerSupplyRead); err != nil {
		return PowerParasite, fmt.Errorf("ds1820: could not issue power supply read: %w", err)
	}
	b, err := d.bus.ReadByte(ctx)
	if err != nil {
		return PowerParasite, fmt.Errorf("ds1820: could not read power supply bit: %w", err)
	}
	if b == 0 {
		return PowerParasite, nil
	}
	return PowerExternal, nil
}

// Search enumerates devices present on the bus, up to maxCount addresses.
// The returned slice is freshly allocated and owned by the caller. The
// search is not restartable mid-call and always terminates with a bus
// reset. With maxCount 0 or less no search traffic is issued at all.
func (d *DS1820) Search(ctx context.Context, maxCount int) ([]onewire.Address, error) {
	if maxCount < 0 {
		maxCount = 0
	}
	if err := d.bus.SetWeakPullUp(ctx); err != nil {
		return nil, fmt.Errorf("ds1820: could not set weak pull-up: %w", err)
	}
	found := make([]onewire.Address, 0, maxCount)
	if maxCount > 0 {
		addr, err := d.bus.SearchFirst(ctx, d.family)
		for err == nil {
			found = append(found, addr)
			if len(found) == maxCount {
				break
			}
			addr, err = d.bus.SearchNext(ctx)
		}
		if err != nil && !errors.Is(err, onewire.ErrEndOfSearch) {
			_ = d.bus.Reset(ctx)
			return found, fmt.Errorf("ds1820: search: %w", err)
		}
	}
	// a reset with nobody answering is not a search failure
	if err := d.bus.Reset(ctx); err != nil && !errors.Is(err, onewire.ErrNoDevice) {
		return found, fmt.Errorf("ds1820: could not reset bus after search: %w", err)
	}
	return found, nil
}

var _ Thermometer = &DS1820{}
