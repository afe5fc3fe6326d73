package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sigurn/crc8"
	"github.com/tarm/serial"

	"github.com/mklimuk/onewire"
)

// ROM level commands
const (
	cmdMatchROM  = 0x55
	cmdSkipROM   = 0xCC
	cmdSearchROM = 0xF0
)

const resetFrame = 0xF0

// data rates: 9600 stretches one frame into a reset pulse, 115200 turns
// each frame into a single bit slot (Maxim app note 214)
const resetDataRate = 9600
const slotDataRate = 115200

// PullUp is the electrical state of the bus line.
type PullUp int

const (
	PullUpWeak PullUp = iota
	PullUpStrong
)

// UARTAdapter is a software 1-wire master over a plain UART wired to the bus
// through a DS9097-style passive phy. The UART produces reset pulses and
// read/write slots by sending one frame per bit: a 0xFF frame releases the
// line early (read slot / write one), a 0x00 frame holds it low (write
// zero). Each slot therefore is a byte transmit plus a byte receive and the
// echo carries the sampled bus level.
//
// The adapter serializes access with an internal mutex the same way a single
// USB bridge would, but the bus still assumes a single logical owner.
type UARTAdapter struct {
	mx     sync.Mutex
	device string
	port   *serial.Port
	pullUp PullUp
	crc    *crc8.Table
	search searchState
}

// NewUARTAdapter creates an adapter for the given serial device, e.g.
// /dev/ttyUSB0. Call Init before use.
func NewUARTAdapter(device string) *UARTAdapter {
	return &UARTAdapter{
		device: device,
		crc:    crc8.MakeTable(crc8.CRC8_MAXIM),
	}
}

// Init opens the serial port. Implements onewire.Bus.
func (a *UARTAdapter) Init(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.open(slotDataRate)
}

// Close releases the serial port.
func (a *UARTAdapter) Close() error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}

// Reset issues a bus reset pulse and checks for a presence answer.
func (a *UARTAdapter) Reset(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.reset()
}

// Select resets the bus and addresses a single device with match ROM, or
// every device with skip ROM for onewire.AddressBroadcast.
func (a *UARTAdapter) Select(ctx context.Context, addr onewire.Address) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.reset(); err != nil {
		return err
	}
	if addr == onewire.AddressBroadcast {
		return a.writeByte(cmdSkipROM)
	}
	if err := a.writeByte(cmdMatchROM); err != nil {
		return err
	}
	// ROM travels LSB first: family code byte leads
	for i := 0; i < 8; i++ {
		if err := a.writeByte(byte(addr >> (8 * i))); err != nil {
			return fmt.Errorf("match ROM byte %d: %w", i, err)
		}
	}
	return nil
}

// SetWeakPullUp records the default communication state. The passive phy
// feeds the bus from the TX idle level, so there is no mode byte to send;
// an active DS2480-style phy would issue one here.
func (a *UARTAdapter) SetWeakPullUp(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	a.pullUp = PullUpWeak
	return nil
}

// SetStrongPullUp records the power delivery state. The adapter keeps the
// line idle-high and issues no slots until the next operation, which is
// what supplies conversion/EEPROM power on the passive phy.
func (a *UARTAdapter) SetStrongPullUp(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	a.pullUp = PullUpStrong
	return nil
}

// PullUpState reports the last requested pull-up state.
func (a *UARTAdapter) PullUpState() PullUp {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.pullUp
}

// WriteByte sends one byte, LSB first, one slot per bit.
func (a *UARTAdapter) WriteByte(ctx context.Context, b byte) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.writeByte(b)
}

// ReadByte samples eight read slots, LSB first.
func (a *UARTAdapter) ReadByte(ctx context.Context) (byte, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.readByte()
}

// Crc8Step accumulates one byte into a running Dallas CRC-8
// (CRC-8/MAXIM). Implements onewire.Bus.
func (a *UARTAdapter) Crc8Step(crc, b byte) byte {
	return crc8.Update(crc, []byte{b}, a.crc)
}

func (a *UARTAdapter) open(baud int) error {
	if a.port != nil {
		if err := a.port.Close(); err != nil {
			return fmt.Errorf("could not close port %s: %w", a.device, err)
		}
		a.port = nil
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        a.device,
		Baud:        baud,
		ReadTimeout: 3 * time.Second,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return fmt.Errorf("could not open port %s: %w", a.device, err)
	}
	a.port = port
	return nil
}

// reset drops to the reset data rate so a single 0xF0 frame stretches into
// a 480us low pulse, then inspects the echo for the presence answer.
func (a *UARTAdapter) reset() error {
	if err := a.open(resetDataRate); err != nil {
		return err
	}
	if _, err := a.port.Write([]byte{resetFrame}); err != nil {
		return fmt.Errorf("could not send reset pulse: %w", err)
	}
	var echo [1]byte
	if _, err := io.ReadFull(a.port, echo[:]); err != nil {
		return fmt.Errorf("could not read reset echo: %w", err)
	}
	if err := a.open(slotDataRate); err != nil {
		return err
	}
	switch {
	case echo[0] == resetFrame || echo[0] == 0xFF:
		// nothing shortened the frame, nobody answered
		return fmt.Errorf("reset: %w", onewire.ErrNoDevice)
	case echo[0] < 0x10 || echo[0] > 0xE0:
		return fmt.Errorf("reset: presence error %#02x", echo[0])
	}
	return nil
}

func (a *UARTAdapter) readBit() (byte, error) {
	if a.port == nil {
		return 0, errors.New("port not initialized")
	}
	_ = a.port.Flush()
	if _, err := a.port.Write([]byte{0xFF}); err != nil {
		return 0, fmt.Errorf("could not start read slot: %w", err)
	}
	var echo [1]byte
	if _, err := io.ReadFull(a.port, echo[:]); err != nil {
		return 0, fmt.Errorf("could not sample read slot: %w", err)
	}
	if echo[0] == 0xFF {
		return 1, nil
	}
	return 0, nil
}

func (a *UARTAdapter) writeBit(b byte) error {
	if a.port == nil {
		return errors.New("port not initialized")
	}
	_ = a.port.Flush()
	frame := byte(0x00)
	if b&1 != 0 {
		frame = 0xFF
	}
	if _, err := a.port.Write([]byte{frame}); err != nil {
		return fmt.Errorf("could not send write slot: %w", err)
	}
	var echo [1]byte
	if _, err := io.ReadFull(a.port, echo[:]); err != nil {
		return fmt.Errorf("could not read back write slot: %w", err)
	}
	if echo[0] != frame {
		return fmt.Errorf("write slot collision: sent %#02x, read back %#02x", frame, echo[0])
	}
	return nil
}

func (a *UARTAdapter) readByte() (byte, error) {
	if a.port == nil {
		return 0, errors.New("port not initialized")
	}
	_ = a.port.Flush()
	frames := [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := a.port.Write(frames[:]); err != nil {
		return 0, fmt.Errorf("could not start read slots: %w", err)
	}
	var echo [8]byte
	if _, err := io.ReadFull(a.port, echo[:]); err != nil {
		return 0, fmt.Errorf("could not sample read slots: %w", err)
	}
	var b byte
	for i, frame := range echo {
		if frame == 0xFF {
			b |= 1 << i
		}
	}
	return b, nil
}

func (a *UARTAdapter) writeByte(b byte) error {
	for i := 0; i < 8; i++ {
		if err := a.writeBit(b >> i); err != nil {
			return fmt.Errorf("bit %d of %#02x: %w", i, b, err)
		}
	}
	return nil
}

var _ onewire.Bus = &UARTAdapter{}
