package onewire

import (
	"context"
	"fmt"
)

// ErrNoDevice is returned by bus selection when no device answers the
// reset/presence sequence for the requested address.
var ErrNoDevice = fmt.Errorf("no device present on the bus")

// ErrEndOfSearch is returned by SearchFirst/SearchNext once the ROM search
// has visited every device on the bus.
var ErrEndOfSearch = fmt.Errorf("no more devices on the bus")

// Bus is a 1-wire bus master. Implementations own the electrical and timing
// layer: reset pulses, bit slots, pull-up strength and the ROM search
// iteration protocol. A bus is a single exclusive resource; callers drive
// operations serially.
type Bus interface {
	// Init prepares the underlying transport for communication.
	Init(ctx context.Context) error
	// Reset issues a bus reset pulse.
	Reset(ctx context.Context) error
	// Select resets the bus and addresses a single device. AddressBroadcast
	// targets every device at once (skip ROM). Returns ErrNoDevice when no
	// presence pulse is detected.
	Select(ctx context.Context, addr Address) error
	// SetWeakPullUp puts the line in the default communication state.
	SetWeakPullUp(ctx context.Context) error
	// SetStrongPullUp makes the line supply conversion/EEPROM write power.
	SetStrongPullUp(ctx context.Context) error
	WriteByte(ctx context.Context, b byte) error
	ReadByte(ctx context.Context) (byte, error)
	// Crc8Step accumulates one byte into a running Dallas CRC-8.
	Crc8Step(crc, b byte) byte
	// SearchFirst restarts the ROM search. A nonzero family seeds the search
	// at that family code; 0 searches the whole bus. Returns ErrEndOfSearch
	// when the bus is empty.
	SearchFirst(ctx context.Context, family byte) (Address, error)
	// SearchNext continues the search started by SearchFirst.
	SearchNext(ctx context.Context) (Address, error)
}
