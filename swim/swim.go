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

// Package swim is the thin session layer sitting directly on top of an
// adapter.Adapter: byte and block memory access, and the three control
// operations (stall, generate-reset, soft-reset) the flash engine and
// autodetect build everything else out of. It adds no retry behaviour of
// its own — every error from the adapter below propagates unchanged.
package swim

import (
	"time"

	"github.com/vdudouyt/stm8flash/adapter"
	"github.com/vdudouyt/stm8flash/errors"
)

// Register addresses every backend's stall/reset sequence reads and writes
// directly; these are fixed SWIM debug-module locations, not part of the
// per-MCU register map in package mcu.
const (
	RegSwimCSR = 0x7f80
	RegDMCSR2  = 0x7f99
)

// Bits within SWIM_CSR and DM_CSR2. Neither register's bit layout is given
// by any retrieved STM8 reference; positions are assigned so that the
// relationships the adapter backends depend on ("stall flips bit 3 of the
// debug CSR", "RST arms auto-exit on reset") hold, matching what both
// stlinkv2's connect sequence and this package's Stall/SoftReset assume.
const (
	csrRST      = 1 << 0
	csrPRI      = 1 << 1
	csrSWIMDM   = 1 << 2
	csrHS       = 1 << 3
	csrHSIT     = 1 << 4
	csrSafeMask = 1 << 7

	dmStall = 1 << 3
)

// Session is a thin memory-access and control layer over an already-opened
// adapter.Adapter.
type Session struct {
	a adapter.Adapter
}

// Open wraps an already-opened adapter. The adapter's own Open is expected
// to have completed the entry sequence and left the target stalled; Session
// adds no further handshake of its own.
func Open(a adapter.Adapter) (*Session, error) {
	if a == nil {
		return nil, errors.Errorf(errors.IOError, "nil adapter")
	}
	return &Session{a: a}, nil
}

// ReadByte reads a single byte from addr.
func (s *Session) ReadByte(addr uint32) (byte, error) {
	var b [1]byte
	if err := s.a.ReadBytes(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes a single byte to addr.
func (s *Session) WriteByte(addr uint32, b byte) error {
	return s.a.WriteBytes(addr, []byte{b})
}

// ReadBlock fills out from addr, split by the adapter into ReadBufSize()
// transactions as needed.
func (s *Session) ReadBlock(addr uint32, out []byte) error {
	return s.a.ReadBytes(addr, out)
}

// WriteBlock writes b to addr, split by the adapter into ReadBufSize()
// transactions as needed.
func (s *Session) WriteBlock(addr uint32, b []byte) error {
	return s.a.WriteBytes(addr, b)
}

// ReadBufSize reports the adapter's largest single read/write transaction.
func (s *Session) ReadBufSize() uint32 {
	return s.a.ReadBufSize()
}

// Stall reads the debug-module CSR, sets or clears its bit 3, and writes it
// back. on=true halts the CPU for memory access; on=false releases it to
// run.
func (s *Session) Stall(on bool) error {
	cur, err := s.ReadByte(RegDMCSR2)
	if err != nil {
		return err
	}
	if on {
		cur |= dmStall
	} else {
		cur &^= dmStall
	}
	return s.WriteByte(RegDMCSR2, cur)
}

// GenReset issues the backend's one-shot reset pulse
// (adapter.Adapter.GenerateReset).
func (s *Session) GenReset() error {
	return s.a.GenerateReset()
}

// SoftReset arms SWIM_CSR's RST bit (so the target auto-exits SWIM mode on
// the coming reset), releases the CPU by clearing the debug CSR's stall
// bit, issues the backend's soft-reset command, and waits ~1ms for the
// target to settle before returning.
func (s *Session) SoftReset() error {
	csr, err := s.ReadByte(RegSwimCSR)
	if err != nil {
		return err
	}
	if err := s.WriteByte(RegSwimCSR, csr|csrRST); err != nil {
		return err
	}
	if err := s.Stall(false); err != nil {
		return err
	}
	if err := s.a.SoftReset(); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return nil
}

// AssertReset drives the target's reset line directly.
func (s *Session) AssertReset() error {
	return s.a.AssertReset()
}

// DeassertReset releases the target's reset line.
func (s *Session) DeassertReset() error {
	return s.a.DeassertReset()
}

// Close releases the underlying adapter.
func (s *Session) Close() error {
	return s.a.Close()
}
