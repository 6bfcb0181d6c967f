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

// Package serialbridge drives a 115200-baud serial adapter speaking a tiny
// request/response framing: [cmd][len][addr_hi3][payload...] answered by
// [cmd][status][payload...], status 0 meaning success and 0xFF preceding a
// 2-byte device error code. The port itself is opened by openPort, which
// has a Unix build using golang.org/x/sys/unix termios and a portable
// fallback built on go.bug.st/serial for everything else.
package serialbridge

import (
	"fmt"
	"io"
	"time"

	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/logger"
)

const (
	cmdSoftReset  = 0x00
	cmdRead       = 0x01
	cmdWrite      = 0x02
	cmdEntrySeq   = 0xFE
	cmdVersion    = 0xFF
	statusOK      = 0x00
	statusError   = 0xFF
	maxReadSplit  = 255
	maxWriteSplit = 128
)

// port is the minimal surface Adapter needs from an opened serial line;
// openPort supplies a concrete implementation per build.
type port interface {
	io.ReadWriter
	Close() error
}

// Adapter implements adapter.Adapter over the serial bridge framing.
type Adapter struct {
	p port
}

// Open opens the named serial device at 115200 8N1 and runs a version
// check plus an initial SWIM reconnect, matching the probe's expected
// bring-up sequence.
func Open(device string) (*Adapter, error) {
	p, err := openPort(device, 115200)
	if err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}
	a := &Adapter{p: p}

	if err := a.checkVersion(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.reconnect(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// errorCheck reads the [cmd][status] header the device always sends first,
// then (if status==0) resp-sized payload, or (if status==0xFF) a 2-byte
// device error code.
func (a *Adapter) errorCheck(want byte, resp []byte) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(a.p, hdr); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	if hdr[0] != want {
		return errors.Errorf(errors.ProtocolError, fmt.Sprintf("unexpected response command byte %#02x", hdr[0]))
	}

	switch hdr[1] {
	case statusOK:
		if len(resp) > 0 {
			if _, err := io.ReadFull(a.p, resp); err != nil {
				return errors.Errorf(errors.IOError, err)
			}
		}
		return nil
	case statusError:
		code := make([]byte, 2)
		if _, err := io.ReadFull(a.p, code); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		return errors.Errorf(errors.ProtocolError, fmt.Sprintf("device reported error code %#04x for command %#02x", uint16(code[0])<<8|uint16(code[1]), want))
	default:
		return errors.Errorf(errors.ProtocolError, fmt.Sprintf("unexpected status byte %#02x", hdr[1]))
	}
}

func (a *Adapter) checkVersion() error {
	if _, err := a.p.Write([]byte{cmdVersion}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	resp := make([]byte, 2)
	if err := a.errorCheck(cmdVersion, resp); err != nil {
		return err
	}
	version := uint16(resp[0])<<8 | uint16(resp[1])
	if version > 0 {
		return errors.Errorf(errors.UnsupportedError, "serialbridge", fmt.Sprintf("unsupported device protocol version %d", version))
	}
	return nil
}

func (a *Adapter) entrySequence() error {
	if _, err := a.p.Write([]byte{cmdEntrySeq}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	resp := make([]byte, 2)
	if err := a.errorCheck(cmdEntrySeq, resp); err != nil {
		return err
	}
	duration := int(resp[0])<<8 | int(resp[1])
	if duration < 1200 || duration > 1360 {
		logger.Logf("adapter", "SWIM entry pulse measured %d cycles, expected ~1280", duration)
	}
	return nil
}

func (a *Adapter) reconnect() error {
	if err := a.entrySequence(); err != nil {
		return err
	}
	if err := a.SoftReset(); err != nil {
		return err
	}
	time.Sleep(time.Microsecond)
	return a.writeByte(0x7f80, 0xA0) // initialise SWIM_CSR
}

func (a *Adapter) writeByte(addr uint32, b byte) error {
	return a.WriteBytes(addr, []byte{b})
}

// ReadBytes implements adapter.Adapter, splitting into ReadBufSize()-sized
// (255-byte) transactions.
func (a *Adapter) ReadBytes(addr uint32, out []byte) error {
	remaining := out
	for len(remaining) > 0 {
		n := len(remaining)
		if n > maxReadSplit {
			n = maxReadSplit
		}

		cmd := []byte{cmdRead, byte(n), byte(addr >> 16), byte(addr >> 8), byte(addr)}
		if _, err := a.p.Write(cmd); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.errorCheck(cmdRead, remaining[:n]); err != nil {
			return err
		}

		remaining = remaining[n:]
		addr += uint32(n)
	}
	return nil
}

// WriteBytes implements adapter.Adapter, splitting into 128-byte block
// writes as the bridge firmware expects.
func (a *Adapter) WriteBytes(addr uint32, b []byte) error {
	remaining := b
	for len(remaining) > 0 {
		n := len(remaining)
		if n > maxWriteSplit {
			n = maxWriteSplit
		}

		cmd := []byte{cmdWrite, byte(n), byte(addr >> 16), byte(addr >> 8), byte(addr)}
		if _, err := a.p.Write(cmd); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if _, err := a.p.Write(remaining[:n]); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.errorCheck(cmdWrite, nil); err != nil {
			return err
		}

		remaining = remaining[n:]
		addr += uint32(n)
	}
	return nil
}

// AssertReset is a no-op on this backend: the bridge has no dedicated
// reset-line control beyond the SWIM soft-reset command.
func (a *Adapter) AssertReset() error { return nil }

// DeassertReset is a no-op; see AssertReset.
func (a *Adapter) DeassertReset() error { return nil }

// GenerateReset re-runs the SWIM entry sequence, the closest equivalent
// this backend has to a one-shot reset pulse.
func (a *Adapter) GenerateReset() error {
	return a.entrySequence()
}

// SoftReset implements adapter.Adapter.
func (a *Adapter) SoftReset() error {
	if _, err := a.p.Write([]byte{cmdSoftReset}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.errorCheck(cmdSoftReset, nil)
}

// ReadBufSize implements adapter.Adapter.
func (a *Adapter) ReadBufSize() uint32 {
	return maxReadSplit
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error {
	if a.p == nil {
		return nil
	}
	err := a.p.Close()
	a.p = nil
	return err
}
