// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

// Package flash implements the STM8 flash/EEPROM/option-byte programming
// state machine: unlock, programming-mode select, block write, EOP/
// WR_PG_DIS polling, and relock. Every public entry point runs the full
// sequence end to end; there is no partial-state resumption across calls.
package flash

import (
	"bytes"
	"time"

	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/mcu"
	"github.com/vdudouyt/stm8flash/swim"
)

// MemType selects which unlock/mode-select dialect a block write uses.
type MemType int

const (
	RAM MemType = iota
	FLASH
	EEPROM
	OPT
)

// FLASH_IAPSR bit positions.
const (
	iapsrWRPGDIS = 1 << 0
	iapsrDUL     = 1 << 1
	iapsrEOP     = 1 << 2
	iapsrPUL     = 1 << 3
	iapsrRelockMask = iapsrDUL | iapsrPUL
)

// Programming-mode bytes written to FLASH_CR2 (and inverted into
// FLASH_NCR2, when the descriptor has one).
const (
	modeOPT                 = 0x80
	modeOPTInverse          = 0x7F
	modeOPTROPEnableInverse = 0x75 // datasheet-mandated exception for ROP enable
	modeOPTROPDisable       = 0x81 // OPT|standard-block, required for the ROP-unlock path
	modeFast                = 0x10
	modeStandard            = 0x01
)

const ropOptionByte = 0x4800

// unlock key byte pairs; PUKR and DUKR take their two bytes in opposite
// order, a hardware quirk both must reproduce exactly.
var (
	pukrKeys = [2]byte{0x56, 0xAE}
	dukrKeys = [2]byte{0xAE, 0x56}
)

// Engine runs the programming state machine for one MCU variant over one
// SWIM session.
type Engine struct {
	s *swim.Session
	d mcu.Descriptor
}

// New builds an Engine for descriptor d over an already-open session.
func New(s *swim.Session, d mcu.Descriptor) *Engine {
	return &Engine{s: s, d: d}
}

// ReadBlock is a plain passthrough to the session; flash reads have no
// unlock/polling state of their own.
func (e *Engine) ReadBlock(addr uint32, out []byte) error {
	return e.s.ReadBlock(addr, out)
}

// resetClock writes 0 to CLK_CKDIVR so programming timers run at the
// datasheet's assumed maximum clock.
func (e *Engine) resetClock() error {
	return e.s.WriteByte(e.d.Regs.ClkCkdivr, 0)
}

func (e *Engine) unlock(m MemType) error {
	switch m {
	case FLASH:
		if err := e.s.WriteByte(e.d.Regs.FlashPukr, pukrKeys[0]); err != nil {
			return err
		}
		return e.s.WriteByte(e.d.Regs.FlashPukr, pukrKeys[1])
	case EEPROM, OPT:
		if err := e.s.WriteByte(e.d.Regs.FlashDukr, dukrKeys[0]); err != nil {
			return err
		}
		return e.s.WriteByte(e.d.Regs.FlashDukr, dukrKeys[1])
	}
	return nil
}

// selectMode writes the programming-mode byte (and its inverse, if the
// descriptor has an NCR2) to FLASH_CR2.
func (e *Engine) selectMode(mode, inverse byte) error {
	if err := e.s.WriteByte(e.d.Regs.FlashCr2, mode); err != nil {
		return err
	}
	if e.d.Regs.FlashNcr2 != 0 {
		return e.s.WriteByte(e.d.Regs.FlashNcr2, inverse)
	}
	return nil
}

// relock clears DUL and PUL in FLASH_IAPSR, returning the target to its
// locked, unprogrammed-access state.
func (e *Engine) relock() error {
	v, err := e.s.ReadByte(e.d.Regs.FlashIapsr)
	if err != nil {
		return err
	}
	return e.s.WriteByte(e.d.Regs.FlashIapsr, v&^byte(iapsrRelockMask))
}

// waitEOP polls FLASH_IAPSR up to attempts times, sleep apart, until EOP is
// set. WR_PG_DIS set at any point is a hard failure.
func (e *Engine) waitEOP(addr uint32, attempts int, sleep time.Duration) error {
	for i := 0; i < attempts; i++ {
		v, err := e.s.ReadByte(e.d.Regs.FlashIapsr)
		if err != nil {
			return err
		}
		if v&iapsrEOP != 0 {
			return nil
		}
		if v&iapsrWRPGDIS != 0 {
			return errors.Errorf(errors.WriteProtected, addr)
		}
		time.Sleep(sleep)
	}
	return errors.Errorf(errors.CommTimeout, "flash end-of-programming")
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// WriteBlock programs data at addr. For RAM this is a plain block write.
// For FLASH/EEPROM, data may be shorter than the descriptor's block size:
// the engine reads the existing block, splices data over its start, and
// skips the write entirely if nothing would change. fastHint requests fast
// (0x10) mode; it is only honoured when the existing block is already
// erased: the whole block when data covers it, otherwise just the bytes
// data leaves untouched.
func (e *Engine) WriteBlock(m MemType, addr uint32, data []byte, fastHint bool) error {
	if m == RAM {
		return e.s.WriteBlock(addr, data)
	}

	blockSize := int(e.d.FlashBlockSize)
	current := make([]byte, blockSize)
	if err := e.s.ReadBlock(addr, current); err != nil {
		return err
	}

	merged := make([]byte, blockSize)
	copy(merged, current)
	copy(merged, data)

	var fastEligible bool
	if len(data) >= blockSize {
		fastEligible = allZero(current)
	} else {
		fastEligible = allZero(current[len(data):])
	}

	if bytes.Equal(merged, current) {
		return nil
	}

	if err := e.resetClock(); err != nil {
		return err
	}
	if err := e.s.Stall(true); err != nil {
		return err
	}
	if err := e.unlock(m); err != nil {
		return err
	}

	fast := fastHint && fastEligible
	if fast {
		if err := e.selectMode(modeFast, ^byte(modeFast)); err != nil {
			return err
		}
	} else {
		if err := e.selectMode(modeStandard, ^byte(modeStandard)); err != nil {
			return err
		}
	}

	if err := e.s.WriteBlock(addr, merged); err != nil {
		return err
	}

	initial := 6 * time.Millisecond
	if fast {
		initial = 3 * time.Millisecond
	}
	time.Sleep(initial)
	if err := e.waitEOP(addr, 5, 10*time.Millisecond); err != nil {
		e.relock()
		return err
	}

	return e.relock()
}

// WriteOption writes an arbitrary-length option-byte buffer starting at
// addr, one byte at a time, each followed by the datasheet's t_prog sleep
// and an EOP poll. Used both for single-byte ROP writes and the legacy
// whole-option-bytes unlock path.
func (e *Engine) WriteOption(addr uint32, data []byte) error {
	if err := e.resetClock(); err != nil {
		return err
	}
	if err := e.s.Stall(true); err != nil {
		return err
	}
	if err := e.unlock(OPT); err != nil {
		return err
	}
	if err := e.selectMode(modeOPT, modeOPTInverse); err != nil {
		return err
	}

	for i, b := range data {
		if err := e.s.WriteByte(addr+uint32(i), b); err != nil {
			e.relock()
			return err
		}
		time.Sleep(6 * time.Millisecond)
		if err := e.waitEOP(addr+uint32(i), 5, 10*time.Millisecond); err != nil {
			e.relock()
			return err
		}
	}

	return e.relock()
}

// LegacyUnlockOptionBytes writes the whole-option-bytes buffer spec for
// descriptors that still expose OptionBytesSize: byte 0 is 0x00, every
// even index from 2 on is 0xFF.
func (e *Engine) LegacyUnlockOptionBytes() error {
	if e.d.OptionBytesSize == 0 {
		return errors.Errorf(errors.UnsupportedError, e.d.Name, "no legacy option-bytes region")
	}
	buf := make([]byte, e.d.OptionBytesSize)
	for i := 2; i < len(buf); i += 2 {
		buf[i] = 0xFF
	}
	return e.WriteOption(e.d.OptionBytesStart, buf)
}

// EnableROP locks the part. The inverse byte written alongside the
// OPT-mode select is 0x75, not the normal 0x7F — the datasheet's specific
// requirement for this transition.
func (e *Engine) EnableROP() error {
	if err := e.resetClock(); err != nil {
		return err
	}
	if err := e.s.Stall(true); err != nil {
		return err
	}
	// set the programming mode first, per RM0031's note on this sequence -
	// the unlock keys come after, unlike the block-write path.
	if err := e.selectMode(modeOPT, modeOPTROPEnableInverse); err != nil {
		return err
	}
	if err := e.unlock(OPT); err != nil {
		return err
	}

	var value byte
	switch e.d.ROPMode {
	case mcu.ROPStyleSTM8S:
		value = 0x00
	case mcu.ROPStyleSTM8L:
		value = 0xAA
	default:
		e.relock()
		return errors.Errorf(errors.UnsupportedError, e.d.Name, "unknown ROP dialect")
	}

	if err := e.s.WriteByte(ropOptionByte, value); err != nil {
		e.relock()
		return err
	}
	if err := e.waitEOP(ropOptionByte, 5, 10*time.Millisecond); err != nil {
		e.relock()
		return err
	}
	return e.relock()
}

// DisableROP unlocks the part. The hardware requires the same value to be
// written twice to commit the change; the byte value's polarity depends on
// the descriptor's ROP dialect.
func (e *Engine) DisableROP() error {
	var value byte
	switch e.d.ROPMode {
	case mcu.ROPStyleSTM8S:
		value = 0xAA
	case mcu.ROPStyleSTM8L:
		value = 0x00
	default:
		return errors.Errorf(errors.UnsupportedError, e.d.Name, "unknown ROP dialect")
	}

	if err := e.resetClock(); err != nil {
		return err
	}
	if err := e.s.Stall(true); err != nil {
		return err
	}
	// set the programming mode first, per RM0031's note on this sequence -
	// the unlock keys come after, unlike the block-write path.
	if err := e.selectMode(modeOPTROPDisable, modeOPTROPEnableInverse); err != nil {
		return err
	}
	if err := e.unlock(OPT); err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		if err := e.s.WriteByte(ropOptionByte, value); err != nil {
			e.relock()
			return err
		}
		if err := e.waitEOP(ropOptionByte, 5, 10*time.Millisecond); err != nil {
			e.relock()
			return err
		}
	}

	return e.relock()
}
