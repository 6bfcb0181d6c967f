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

// Package stlinkv2 drives ST-LINK/V2, V2.1 and V3 probes: a 16-byte command
// frame on a bulk OUT endpoint (EP2 on V2, EP1 on V2.1/V3), replies on bulk
// EP1 IN, with a SWIM sub-command multiplexer reached through the STLINK_SWIM
// command byte.
package stlinkv2

import (
	"context"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"

	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/logger"
)

// USB identifiers for the three probe generations this backend supports.
const (
	VendorID = 0x0483

	productV2     = 0x3748
	productV21    = 0x374b
	productV21Alt = 0x3752
	productV3     = 0x374e
)

type generation int

const (
	genV2 generation = iota
	genV21
	genV3
)

// top-level command bytes (cmdBuffer[0])
const (
	cmdGetVersion     = 0xf1
	cmdDebug          = 0xf2
	cmdDfu            = 0xf3
	cmdSwim           = 0xf4
	cmdGetCurrentMode = 0xf5
	cmdGetVDD         = 0xf7
)

const (
	debugExit = 0x21
	dfuExit   = 0x07
)

// device mode byte returned by GET_CURRENT_MODE
const (
	modeDFU        = 0x00
	modeMass       = 0x01
	modeDebug      = 0x02
	modeSwim       = 0x03
	modeBootloader = 0x04
)

// SWIM sub-command bytes (cmdBuffer[1] when cmdBuffer[0] == cmdSwim)
const (
	swimEnter           = 0x00
	swimExit            = 0x01
	swimReadCap         = 0x02
	swimSpeed           = 0x03
	swimEnterSeq        = 0x04
	swimGenRst          = 0x05
	swimReset           = 0x06
	swimAssertReset     = 0x07
	swimDeassertReset   = 0x08
	swimReadStatus      = 0x09
	swimWriteMem        = 0x0a
	swimReadMem         = 0x0b
	swimReadBuf         = 0x0c
	swimReadBufferSize  = 0x0d
)

// SWIM status byte values, first byte of a READSTATUS reply.
const (
	statusOK         = 0x00
	statusBusy       = 0x01
	statusNoResponse = 0x04
	statusBadState   = 0x05
)

// target-side SWIM registers, read/written through swimReadMem/swimWriteMem.
const (
	regSwimCSR   = 0x7f80
	regDMCSR2    = 0x7f99
	regSwimCSRHS = 1 << 3 // HS bit
	csrHSIT      = 1 << 4 // HSIT bit
	csrSafeMask  = 1 << 7
	csrSWIMDM    = 1 << 2
	csrPRI       = 1 << 1
	csrRST       = 1 << 0
	dmStall      = 1 << 3
)

const maxWaitRetries = 2000

// capability flags tracked in a bitmap, mirroring gostlink's version/flag
// approach for a probe whose feature set varies by firmware build.
const (
	flagHasReadCap = iota
	flagHighSpeed
)

// Adapter implements adapter.Adapter over an ST-LINK V2/V2.1/V3 USB probe.
type Adapter struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	out     *gousb.OutEndpoint
	in      *gousb.InEndpoint
	gen     generation
	bufSize uint32
	flags   bitmap.Bitmap
}

// Open enumerates the first matching ST-LINK V2/V2.1/V3 device, claims its
// interface, and runs the full SWIM connect sequence: mode exit, SWIM
// enter, buffer-size/capability query, target reset, entry sequence, CSR
// setup, reset pulse, and high-speed negotiation.
func Open(ctx *gousb.Context) (*Adapter, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(productV2))
	gen := genV2
	if err != nil || dev == nil {
		dev, err = ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(productV21))
		gen = genV21
	}
	if err != nil || dev == nil {
		dev, err = ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(productV3))
		gen = genV3
	}
	if err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}
	if dev == nil {
		return nil, errors.Errorf(errors.IOError, "no ST-LINK/V2, V2.1 or V3 device found")
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

	outEP := 2
	if gen == genV21 || gen == genV3 {
		outEP = 1
	}
	out, err := intf.OutEndpoint(outEP)
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

	a := &Adapter{
		ctx:   ctx,
		dev:   dev,
		intf:  intf,
		out:   out,
		in:    in,
		gen:   gen,
		flags: bitmap.New(8),
	}

	if err := a.connect(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Adapter) write(buf []byte) error {
	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	_, err := a.out.WriteContext(opCtx, buf)
	return err
}

func (a *Adapter) read(buf []byte) error {
	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	n := 0
	for n < len(buf) {
		got, err := a.in.ReadContext(opCtx, buf[n:])
		if err != nil {
			return err
		}
		n += got
	}
	return nil
}

func (a *Adapter) waitForStatus() error {
	retries := 0
	for {
		if err := a.write([]byte{cmdSwim, swimReadStatus}); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		reply := make([]byte, 4)
		if err := a.read(reply); err != nil {
			return errors.Errorf(errors.IOError, err)
		}

		switch reply[0] {
		case statusOK:
			return nil
		case statusBusy:
			retries++
			if retries > maxWaitRetries {
				return errors.Errorf(errors.CommTimeout, "SWIM status still BUSY")
			}
			time.Sleep(time.Millisecond)
			continue
		default:
			return errors.Errorf(errors.ProtocolError, "bad SWIM status byte")
		}
	}
}

func (a *Adapter) connect() error {
	// GET_VERSION (logged only, advisory per the adapter's contract)
	if err := a.write([]byte{cmdGetVersion}); err == nil {
		reply := make([]byte, 6)
		if a.read(reply) == nil {
			v := uint16(reply[0])<<8 | uint16(reply[1])
			logger.Logf("adapter", "stlink version %d.%d.%d, vid/pid %02x%02x/%02x%02x",
				(v>>12)&0xf, (v>>6)&0x3f, v&0x3f, reply[2], reply[3], reply[4], reply[5])
		}
	}

	if err := a.write([]byte{cmdGetCurrentMode}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	mode := make([]byte, 2)
	if err := a.read(mode); err != nil {
		return errors.Errorf(errors.IOError, err)
	}

	switch mode[0] {
	case modeDebug:
		if err := a.write([]byte{cmdDebug, debugExit}); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
	case modeBootloader, modeDFU, modeMass:
		if err := a.write([]byte{cmdDfu, dfuExit}); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
	}

	if err := a.write([]byte{cmdSwim, swimEnter}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}

	if err := a.write([]byte{cmdSwim, swimReadBufferSize}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	bsize := make([]byte, 2)
	if err := a.read(bsize); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	a.bufSize = uint32(bsize[0]) | uint32(bsize[1])<<8
	if a.bufSize == 0 {
		a.bufSize = 64
	}

	if err := a.write([]byte{cmdSwim, swimReadCap, 0x01}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	capBytes := make([]byte, 8)
	_ = a.read(capBytes) // capability bytes are logged only, never acted on
	a.flags.Set(flagHasReadCap, true)

	if err := a.AssertReset(); err != nil {
		return err
	}

	if err := a.write([]byte{cmdSwim, swimEnterSeq}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	if err := a.waitForStatus(); err != nil {
		return err
	}

	if err := a.swimWriteByte(regSwimCSR, csrSafeMask|csrSWIMDM|csrPRI); err != nil {
		return err
	}
	if err := a.swimWriteByte(regDMCSR2, dmStall); err != nil {
		return err
	}

	if err := a.GenerateReset(); err != nil {
		return err
	}
	if err := a.DeassertReset(); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)

	return a.negotiateHighSpeed()
}

func (a *Adapter) negotiateHighSpeed() error {
	csr, err := a.swimReadByte(regSwimCSR)
	if err != nil {
		return err
	}
	if csr&csrHSIT == 0 {
		logger.Log("adapter", "continuing in low speed SWIM")
		return nil
	}

	if err := a.swimWriteByte(regSwimCSR, csr|regSwimCSRHS); err != nil {
		return err
	}
	if err := a.write([]byte{cmdSwim, swimSpeed, 1}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	a.flags.Set(flagHighSpeed, true)
	logger.Log("adapter", "continuing in high speed SWIM")
	return nil
}

func (a *Adapter) swimReadByte(addr uint32) (byte, error) {
	out := make([]byte, 1)
	if err := a.ReadBytes(addr, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (a *Adapter) swimWriteByte(addr uint32, b byte) error {
	return a.WriteBytes(addr, []byte{b})
}

// ReadBytes implements adapter.Adapter.
func (a *Adapter) ReadBytes(addr uint32, out []byte) error {
	remaining := out
	for len(remaining) > 0 {
		n := uint32(len(remaining))
		if n > a.bufSize {
			n = a.bufSize
		}

		cmd := []byte{
			cmdSwim, swimReadMem,
			byte(n >> 8), byte(n),
			byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr),
		}
		if err := a.write(cmd); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.waitForStatus(); err != nil {
			return err
		}

		if err := a.write([]byte{cmdSwim, swimReadBuf}); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.read(remaining[:n]); err != nil {
			return errors.Errorf(errors.IOError, err)
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

		cmd := make([]byte, 0, 8+n)
		cmd = append(cmd, cmdSwim, swimWriteMem, byte(n>>8), byte(n))
		cmd = append(cmd, byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
		cmd = append(cmd, remaining[:n]...)

		if err := a.write(cmd); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
		if err := a.waitForStatus(); err != nil {
			return err
		}

		remaining = remaining[n:]
		addr += n
	}
	return nil
}

// AssertReset implements adapter.Adapter.
func (a *Adapter) AssertReset() error {
	if err := a.write([]byte{cmdSwim, swimAssertReset}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.waitForStatus()
}

// DeassertReset implements adapter.Adapter.
func (a *Adapter) DeassertReset() error {
	if err := a.write([]byte{cmdSwim, swimDeassertReset}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return a.waitForStatus()
}

// GenerateReset implements adapter.Adapter.
func (a *Adapter) GenerateReset() error {
	if err := a.write([]byte{cmdSwim, swimGenRst}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return nil
}

// SoftReset implements adapter.Adapter.
func (a *Adapter) SoftReset() error {
	csr, err := a.swimReadByte(regSwimCSR)
	if err != nil {
		return err
	}
	if csr&csrSWIMDM == 0 {
		return errors.Errorf(errors.ProtocolError, "target not in SWIM debug mode")
	}
	if err := a.write([]byte{cmdSwim, swimReset}); err != nil {
		return errors.Errorf(errors.IOError, err)
	}
	return nil
}

// ReadBufSize implements adapter.Adapter.
func (a *Adapter) ReadBufSize() uint32 {
	return a.bufSize
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error {
	if a.out != nil {
		_ = a.write([]byte{cmdSwim, swimExit})
	}
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
