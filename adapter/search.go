package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/sigurn/crc8"

	"github.com/mklimuk/onewire"
)

// bitTransport is the slice of the adapter the search walk needs: one read
// slot and one write slot at a time.
type bitTransport interface {
	readBit() (byte, error)
	writeBit(b byte) error
}

// searchState carries the discrepancy bookkeeping of the standard ROM
// search (Maxim app note 187) between successive passes.
type searchState struct {
	rom             uint64
	lastDiscrepancy int
	done            bool
	family          byte
}

// restart rewinds the search. A nonzero family seeds the walk at that
// family code so the first pass lands directly inside the family branch.
func (s *searchState) restart(family byte) {
	s.family = family
	s.done = false
	s.rom = uint64(family)
	s.lastDiscrepancy = 0
	if family != 0 {
		s.lastDiscrepancy = 64
	}
}

// next walks all 64 ROM bit positions of one search pass. The caller has
// already issued the bus reset and the search ROM command. At every
// position two read slots expose the AND of the remaining devices' bit and
// complement; the written direction bit deselects everyone who disagrees.
func (s *searchState) next(t bitTransport) (uint64, error) {
	var rom uint64
	lastZero := 0
	for pos := 1; pos <= 64; pos++ {
		idBit, err := t.readBit()
		if err != nil {
			return 0, fmt.Errorf("search bit %d: %w", pos, err)
		}
		cmpBit, err := t.readBit()
		if err != nil {
			return 0, fmt.Errorf("search complement bit %d: %w", pos, err)
		}
		var dir byte
		switch {
		case idBit == 1 && cmpBit == 1:
			// nobody answered this position
			s.done = true
			return 0, onewire.ErrEndOfSearch
		case idBit != cmpBit:
			dir = idBit
		case pos < s.lastDiscrepancy:
			dir = byte(s.rom >> (pos - 1) & 1)
			if dir == 0 {
				lastZero = pos
			}
		case pos == s.lastDiscrepancy:
			dir = 1
		default:
			lastZero = pos
		}
		if dir == 1 {
			rom |= 1 << (pos - 1)
		}
		if err := t.writeBit(dir); err != nil {
			return 0, fmt.Errorf("search direction bit %d: %w", pos, err)
		}
	}
	s.lastDiscrepancy = lastZero
	s.done = lastZero == 0
	s.rom = rom
	return rom, nil
}

// SearchFirst restarts the ROM search and returns the first device found.
// Implements onewire.Bus.
func (a *UARTAdapter) SearchFirst(ctx context.Context, family byte) (onewire.Address, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.search.restart(family)
	return a.searchStep(ctx)
}

// SearchNext continues the search started by SearchFirst.
func (a *UARTAdapter) SearchNext(ctx context.Context) (onewire.Address, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.searchStep(ctx)
}

func (a *UARTAdapter) searchStep(ctx context.Context) (onewire.Address, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.search.done {
		return 0, onewire.ErrEndOfSearch
	}
	if err := a.reset(); err != nil {
		if errors.Is(err, onewire.ErrNoDevice) {
			a.search.done = true
			return 0, onewire.ErrEndOfSearch
		}
		return 0, err
	}
	if err := a.writeByte(cmdSearchROM); err != nil {
		return 0, err
	}
	rom, err := a.search.next(a)
	if err != nil {
		return 0, err
	}
	addr := onewire.Address(rom)
	var payload [7]byte
	for i := range payload {
		payload[i] = byte(rom >> (8 * i))
	}
	if crc8.Checksum(payload[:], a.crc) != addr.CRC() {
		return 0, fmt.Errorf("search returned %s with an invalid ROM crc", addr)
	}
	if a.search.family != 0 && addr.Family() != a.search.family {
		// the walk left the seeded family branch, everything after this
		// point belongs to other families
		a.search.done = true
		return 0, onewire.ErrEndOfSearch
	}
	return addr, nil
}
