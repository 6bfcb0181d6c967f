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

// Package stlinkv1 drives the original ST-LINK/V1 probe, which speaks a
// USB-mass-storage-like command framing: a 31-byte Command Block Wrapper
// (CBW) carrying a 16-byte opcode, answered by a 13-byte Command Status
// Wrapper (CSW). Target memory access is a submit/poll/collect sequence
// built on top of that framing.
package stlinkv1

import (
	"context"
	"time"

	"github.com/google/gousb"

	"github.com/vdudouyt/stm8flash/errors"
)

// USB identifiers for the V1 probe.
const (
	VendorID  = 0x0483
	ProductID = 0x3744
)

const (
	cbwSignature = 0x55534243 // "USBC"
	cswSignature = 0x55534253 // "USBS"

	cbwSize = 31
	cswSize = 13
)

// opcodes placed in the CBW's 16-byte command block; this probe generation
// exposes a narrower SWIM surface than V2, reached through two opcodes and
// a submit/poll/collect read.
const (
	opSWIMReadMem  = 0xf0
	opSWIMWriteMem = 0xf1
	opSWIMReset    = 0xf2
	opAssertReset  = 0xf3
	opDeassert     = 0xf4
	opGenReset     = 0xf5
)

// Adapter implements adapter.Adapter over an ST-LINK/V1 USB probe.
type Adapter struct {
	dev     *gousb.Device
	intf    *gousb.Interface
	out     *gousb.OutEndpoint
	in      *gousb.InEndpoint
	tag     uint32
	bufSize uint32
}

// Open enumerates the first attached ST-LINK/V1 device and claims its bulk
// endpoints. V1 has no capability query; the read/write split size is a
// conservative fixed constant matching the probe's small onboard buffer.
func Open(ctx *gousb.Context) (*Adapter, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}
	if dev == nil {
		return nil, errors.Errorf(errors.IOError, "no ST-LINK/V1 device found")
	}
	dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		dev.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}
	out, err := intf.OutEndpoint(2)
	if err != nil {
		intf.Close()
		dev.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}
	in, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		dev.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}

	return &Adapter{dev: dev, intf: intf, out: out, in: in, bufSize: 64}, nil
}

func (a *Adapter) nextTag() uint32 {
	a.tag++
	return a.tag
}

// cbw builds and sends a 31-byte Command Block Wrapper carrying opcode as
// the first byte of its 16-byte command block, followed by args.
func (a *Adapter) cbw(transferLen uint32, dirIn bool, opcode byte, args ...byte) error {
	buf := make([]byte, cbwSize)
	putU32(buf[0:4], cbwSignature)
	tag := a.nextTag()
	putU32(buf[4:8], tag)
	putU32(buf[8:12], transferLen)
	if dirIn {
		buf[12] = 0x80
	}
	buf[13] = 0 // LUN
	buf[14] = byte(1 + len(args))
	buf[15] = opcode
	copy(buf[16:], args)

	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	_, err := a.out.WriteContext(opCtx, buf)
	return err
}

// csw reads and validates the 13-byte Command Status Wrapper for the most
// recently issued CBW.
func (a *Adapter) csw() error {
	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	buf := make([]byte, cswSize)
	n := 0
	for n < cswSize {
		got, err := a.in.ReadContext(opCtx, buf[n:])
		if err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		n += got
	}

	if getU32(buf[0:4]) != cswSignature {
		return errors.Errorf(errors.ProtocolError, "bad CSW signature")
	}
	if buf[12] != 0 {
		return errors.Errorf(errors.ProtocolError, "CSW status byte nonzero")
	}
	return nil
}

func (a *Adapter) readPayload(out []byte) error {
	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	n := 0
	for n < len(out) {
		got, err := a.in.ReadContext(opCtx, out[n:])
		if err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		n += got
	}
	return nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ReadBytes implements adapter.Adapter: submit, collect payload, then check
// status via CSW, repeated in ReadBufSize()-sized chunks.
func (a *Adapter) ReadBytes(addr uint32, out []byte) error {
	remaining := out
	for len(remaining) > 0 {
		n := uint32(len(remaining))
		if n > a.bufSize {
			n = a.bufSize
		}

		args := []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr), byte(n >> 8), byte(n)}
		if err := a.cbw(n, true, opSWIMReadMem, args...); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.readPayload(remaining[:n]); err != nil {
			return err
		}
		if err := a.csw(); err != nil {
			return err
		}

		remaining = remaining[n:]
		addr += n
	}
	return nil
}

// WriteBytes implements adapter.Adapter.
func (a *Adapter) WriteBytes(addr uint32, b []byte) error {
	remaining := b
	for len(remaining) > 0 {
		n := uint32(len(remaining))
		if n > a.bufSize {
			n = a.bufSize
		}

		args := []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
		args = append(args, remaining[:n]...)
		if err := a.cbw(0, false, opSWIMWriteMem, args...); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.csw(); err != nil {
			return err
		}

		remaining = remaining[n:]
		addr += n
	}
	return nil
}

// AssertReset implements adapter.Adapter.
func (a *Adapter) AssertReset() error {
	if err := a.cbw(0, false, opAssertReset); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.csw()
}

// DeassertReset implements adapter.Adapter.
func (a *Adapter) DeassertReset() error {
	if err := a.cbw(0, false, opDeassert); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.csw()
}

// GenerateReset implements adapter.Adapter.
func (a *Adapter) GenerateReset() error {
	if err := a.cbw(0, false, opGenReset); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.csw()
}

// SoftReset implements adapter.Adapter.
func (a *Adapter) SoftReset() error {
	if err := a.cbw(0, false, opSWIMReset); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.csw()
}

// ReadBufSize implements adapter.Adapter.
func (a *Adapter) ReadBufSize() uint32 {
	return a.bufSize
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error {
	if a.intf != nil {
		a.intf.Close()
		a.intf = nil
	}
	if a.dev != nil {
		err := a.dev.Close()
		a.dev = nil
		return err
	}
	return nil
}
