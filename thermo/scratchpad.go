package thermo

import (
	"fmt"
	"strconv"
)

// DS1820 scratchpad length in bytes, CRC included.
const scratchpadLength = 9
const scratchpadCRCPos = scratchpadLength - 1

// Scratchpad is the 9-byte volatile memory region of a DS1820, decoded into
// named fields so the fixed byte positions live in exactly one place.
type Scratchpad struct {
	TempCount      byte // [0] temperature counts, 0.5 degC per count
	TempSign       byte // [1] zero for non-negative readings, nonzero otherwise
	AlarmHigh      byte // [2] TH user byte, sign-magnitude degrees
	AlarmLow       byte // [3] TL user byte, sign-magnitude degrees
	Reserved0      byte // [4]
	Reserved1      byte // [5]
	CountRemain    byte // [6] counts left at the end of the conversion
	CountPerDegree byte // [7] counts per degree calibration value
	CRC            byte // [8] Dallas CRC-8 of bytes [0..7]
}

func scratchpadFromBytes(raw [scratchpadLength]byte) Scratchpad {
	return Scratchpad{
		TempCount:      raw[0],
		TempSign:       raw[1],
		AlarmHigh:      raw[2],
		AlarmLow:       raw[3],
		Reserved0:      raw[4],
		Reserved1:      raw[5],
		CountRemain:    raw[6],
		CountPerDegree: raw[7],
		CRC:            raw[8],
	}
}

// Temperature reconstructs the fixed-point reading from the scratchpad using
// the DS1820 high resolution algorithm:
//
//	base       = counts * +-0.5 degC (sign from the extension byte)
//	correction = -0.25 degC + (countPerDegree - countRemain) / countPerDegree
//
// computed in integer hundredths-of-tenths and truncated toward zero to
// tenths of a degree, matching the silicon bit for bit. A zero
// countPerDegree byte means the scratchpad is garbage and yields
// ErrMalformedScratchpad instead of a division by zero.
func (s Scratchpad) Temperature() (Temperature, error) {
	if s.CountPerDegree == 0 {
		return TemperatureInvalid, fmt.Errorf("count per degree byte is zero: %w", ErrMalformedScratchpad)
	}
	t := int(s.TempCount) * 500
	if s.TempSign != 0 {
		t = -t
	}
	t += -250 + (1000*(int(s.CountPerDegree)-int(s.CountRemain)))/int(s.CountPerDegree)
	return Temperature(t / 100), nil
}

// Thresholds decodes the high and low alarm user bytes into whole degrees.
func (s Scratchpad) Thresholds() (high, low int) {
	return decodeThreshold(s.AlarmHigh), decodeThreshold(s.AlarmLow)
}

// Temperature is a sensor reading in tenths of a degree Celsius.
type Temperature int

// TemperatureInvalid marks an unavailable measurement. It is far outside the
// DS1820 operating range so a real reading can never collide with it.
const TemperatureInvalid Temperature = -10000

// Valid reports whether the value is an actual measurement.
func (t Temperature) Valid() bool {
	return t != TemperatureInvalid
}

// Celsius returns the reading in degrees.
func (t Temperature) Celsius() float64 {
	return float64(t) / 10
}

func (t Temperature) String() string {
	if !t.Valid() {
		return "n/a"
	}
	return strconv.FormatFloat(t.Celsius(), 'f', 1, 64) + "°C"
}

// encodeThreshold converts whole degrees to the DS1820 sign-magnitude user
// byte: bit 7 carries the sign, bits 0-6 the magnitude. Values must fit in
// 7 bits; larger magnitudes truncate silently.
func encodeThreshold(degrees int) byte {
	if degrees >= 0 {
		return byte(degrees) & 0x7F
	}
	return 0x80 | (byte(-degrees) & 0x7F)
}

func decodeThreshold(b byte) int {
	if b&0x80 != 0 {
		return -int(b & 0x7F)
	}
	return int(b & 0x7F)
}
