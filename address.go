package onewire

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is the unique 64-bit ROM code of a 1-wire device. The family code
// occupies the low byte, the 48-bit serial number the middle six bytes and
// the ROM CRC the high byte, matching the order the bits travel on the wire
// (LSB first).
type Address uint64

// AddressBroadcast selects every device on the bus (skip ROM). Reads are
// only meaningful with a single device attached; collective commands such
// as a broadcast conversion work with any number of devices.
const AddressBroadcast Address = 0

// Family returns the 8-bit device family code.
func (a Address) Family() byte {
	return byte(a)
}

// Serial returns the 48-bit serial number.
func (a Address) Serial() uint64 {
	return uint64(a>>8) & 0xFFFFFFFFFFFF
}

// CRC returns the ROM CRC byte.
func (a Address) CRC() byte {
	return byte(a >> 56)
}

// String renders the address in the canonical family.serial.crc form, e.g.
// "10.0008021ae263.a7".
func (a Address) String() string {
	return fmt.Sprintf("%02x.%012x.%02x", a.Family(), a.Serial(), a.CRC())
}

// ParseAddress accepts either the canonical family.serial.crc form produced
// by String or a bare 16-digit hex ROM code.
func ParseAddress(s string) (Address, error) {
	if !strings.Contains(s, ".") {
		raw, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid device address %q: %w", s, err)
		}
		return Address(raw), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid device address %q: want family.serial.crc", s)
	}
	family, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid family code in %q: %w", s, err)
	}
	serial, err := strconv.ParseUint(parts[1], 16, 48)
	if err != nil {
		return 0, fmt.Errorf("invalid serial number in %q: %w", s, err)
	}
	crc, err := strconv.ParseUint(parts[2], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid crc in %q: %w", s, err)
	}
	return Address(crc<<56 | serial<<8 | family), nil
}
