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

// Package program is the orchestrator: given a Plan (a resolved adapter
// handle, an MCU variant or a request to autodetect one, a target region,
// and an image file already opened by the caller) it drives the swim,
// flash and image packages through one read/write/verify/lock run and
// reports progress through logger.
package program

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vdudouyt/stm8flash/adapter"
	"github.com/vdudouyt/stm8flash/autodetect"
	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/flash"
	"github.com/vdudouyt/stm8flash/image/binary"
	"github.com/vdudouyt/stm8flash/image/ihex"
	"github.com/vdudouyt/stm8flash/image/srec"
	"github.com/vdudouyt/stm8flash/logger"
	"github.com/vdudouyt/stm8flash/mcu"
	"github.com/vdudouyt/stm8flash/region"
	"github.com/vdudouyt/stm8flash/swim"
)

// Mode selects the orchestrator's primary operation for one run. ListParts
// and ListAdapters need no adapter at all; the rest open one.
type Mode int

const (
	ModeNone Mode = iota
	ModeReset
	ModeRead
	ModeVerify
	ModeWrite
	ModeListParts
	ModeListAdapters
)

// Format names an image codec.
type Format int

const (
	FormatIHex Format = iota
	FormatSRec
	FormatBinary
)

// AdapterNames is the fixed set of programmer names the -c flag accepts,
// in the order -L lists them.
var AdapterNames = []string{"stlink", "stlinkv2", "stlinkv21", "stlinkv3", "espstlink"}

// Plan is the orchestrator's in-memory run configuration; one Plan, one
// run. cmd/stm8flash owns flag parsing, opening the adapter and opening
// the image file - everything this package needs to do its job arrives
// already resolved.
type Plan struct {
	Mode Mode

	// Adapter is the already-open transport. Unused for ModeListParts and
	// ModeListAdapters.
	Adapter adapter.Adapter

	// Part is a wildcard MCU name per mcu.Lookup; empty triggers
	// autodetect.Detect over the open session.
	Part string

	// RegionSpec is the raw -s argument: "flash", "eeprom", "ram", "opt",
	// or a hex/decimal address. Empty means no region was given at all.
	// Resolved against the descriptor once it is known, since autodetect
	// means the memory map isn't available at flag-parsing time.
	RegionSpec string

	// RegionLenArg is the raw -b argument; 0 means "whole region",
	// resolved the same way as RegionSpec.
	RegionLenArg uint32

	// Image is the already-open source file for Write/Verify; Output is
	// the already-open destination file for Read. Exactly one is used,
	// depending on Mode.
	Image  io.Reader
	Output io.Writer
	Format Format

	Unlock bool
	Lock   bool

	Force     bool
	SkipReset bool
}

// Run executes plan to completion. A final target reset is attempted
// unless SkipReset, even when the requested operation itself failed.
func Run(p Plan) error {
	switch p.Mode {
	case ModeListParts:
		listParts(p.Output)
		return nil
	case ModeListAdapters:
		listAdapters(p.Output)
		return nil
	}

	if p.Adapter == nil {
		return errors.Errorf(errors.IOError, "no adapter open")
	}

	s, err := swim.Open(p.Adapter)
	if err != nil {
		return err
	}

	d, err := resolveDescriptor(s, p.Part)
	if err != nil {
		return err
	}
	logger.Logf("program", "using part %s: flash %d@%#06x (block %d), eeprom %d@%#06x, ram %d@%#06x, %s",
		d.Name, d.FlashSize, d.FlashStart, d.FlashBlockSize, d.EEPROMSize, d.EEPROMStart, d.RAMSize, d.RAMStart, d.ROPMode)

	e := flash.New(s, d)

	var rr resolvedRegion
	if p.RegionSpec != "" {
		rr, err = resolveRegion(d, p.RegionSpec, p.RegionLenArg)
		if err != nil {
			return err
		}
	}

	var runErr error
	if p.Unlock {
		logger.Log("program", "disabling readout protection")
		runErr = e.DisableROP()
	}

	if runErr == nil {
		switch p.Mode {
		case ModeRead:
			runErr = runRead(e, p, rr)
		case ModeVerify:
			runErr = runVerify(e, p, rr)
		case ModeWrite:
			runErr = runWrite(e, d, p, rr)
		case ModeReset, ModeNone:
			// nothing further; the final reset below is the whole point
			// of ModeReset.
		}
	}

	if runErr == nil && p.Lock {
		logger.Log("program", "enabling readout protection")
		runErr = e.EnableROP()
	}

	if !p.SkipReset {
		logger.Log("program", "resetting target")
		if err := s.SoftReset(); err != nil && runErr == nil {
			runErr = err
		}
	}

	return runErr
}

func resolveDescriptor(s *swim.Session, part string) (mcu.Descriptor, error) {
	if part == "" {
		logger.Log("program", "no part given, autodetecting")
		d, err := autodetect.Detect(s)
		if err != nil {
			return mcu.Descriptor{}, err
		}
		logger.Logf("program", "autodetected %s", d.Name)
		return d, nil
	}
	d, ok := mcu.Lookup(part)
	if !ok {
		return mcu.Descriptor{}, errors.Errorf(errors.UnsupportedError, "part", fmt.Sprintf("no descriptor matches %q", part))
	}
	return d, nil
}

// resolvedRegion is RegionSpec/RegionLenArg resolved against a concrete
// descriptor: the memory kind, start address and byte count a mode
// actually operates on. Its zero value means "no region given".
type resolvedRegion struct {
	has     bool
	memType flash.MemType
	start   uint32
	length  uint32
}

// resolveRegion implements the -s flag against a now-known descriptor: a
// named region (whole-region length by default), or a bare address whose
// memory kind is inferred from d's declared memory map.
func resolveRegion(d mcu.Descriptor, spec string, lenArg uint32) (resolvedRegion, error) {
	named := func(m flash.MemType, start, size uint32) (resolvedRegion, error) {
		n := lenArg
		if n == 0 {
			n = size
		}
		return resolvedRegion{has: true, memType: m, start: start, length: n}, nil
	}

	switch strings.ToLower(spec) {
	case "flash":
		return named(flash.FLASH, d.FlashStart, d.FlashSize)
	case "eeprom":
		return named(flash.EEPROM, d.EEPROMStart, d.EEPROMSize)
	case "ram":
		return named(flash.RAM, d.RAMStart, d.RAMSize)
	case "opt":
		return named(flash.OPT, d.OptionBytesStart, d.OptionBytesSize)
	}

	addr, perr := strconv.ParseUint(spec, 0, 32)
	if perr != nil {
		return resolvedRegion{}, errors.Errorf(errors.IOError, fmt.Sprintf("-s %q: not a region name or address", spec))
	}
	a := uint32(addr)
	if lenArg == 0 {
		return resolvedRegion{}, errors.Errorf(errors.IOError, fmt.Sprintf("-s %#x requires an explicit -b byte count", a))
	}

	kinds := []flash.MemType{flash.FLASH, flash.EEPROM, flash.RAM, flash.OPT}
	m := flash.FLASH
	for _, k := range kinds {
		start, size := regionBounds(d, k)
		if size > 0 && a >= start && a < start+size {
			m = k
			break
		}
	}
	return resolvedRegion{has: true, memType: m, start: a, length: lenArg}, nil
}

func runRead(e *flash.Engine, p Plan, rr resolvedRegion) error {
	if !rr.has {
		return errors.Errorf(errors.IOError, "read requires a memory region (-s/-b)")
	}
	if p.Output == nil {
		return errors.Errorf(errors.IOError, "read requires an output file (-r)")
	}

	data := make([]byte, rr.length)
	if err := e.ReadBlock(rr.start, data); err != nil {
		return err
	}

	list := &region.List{}
	if err := list.Add(rr.start, data); err != nil {
		return err
	}

	logger.Logf("program", "read %s", list)
	return writeImage(p.Output, p.Format, list)
}

func runVerify(e *flash.Engine, p Plan, rr resolvedRegion) error {
	if p.Image == nil {
		return errors.Errorf(errors.IOError, "verify requires a source file (-v)")
	}

	want, err := readImage(p.Image, p.Format)
	if err != nil {
		return err
	}
	if p.Format == FormatBinary {
		want.Shift(int64(rr.start))
	}

	for _, r := range want.Regions() {
		got := make([]byte, len(r.Data))
		if err := e.ReadBlock(r.Start, got); err != nil {
			return err
		}
		for i := range r.Data {
			if got[i] != r.Data[i] {
				return errors.Errorf(errors.VerifyFailed, r.Start+uint32(i), r.Data[i], got[i])
			}
		}
	}

	logger.Logf("program", "verify OK: %s", want)
	return nil
}

func runWrite(e *flash.Engine, d mcu.Descriptor, p Plan, rr resolvedRegion) error {
	if p.Image == nil {
		return errors.Errorf(errors.IOError, "write requires a source file (-w)")
	}

	list, err := readImage(p.Image, p.Format)
	if err != nil {
		return err
	}
	if p.Format == FormatBinary {
		list.Shift(int64(rr.start))
	}

	if rr.has {
		slice := &region.List{}
		if err := slice.AddEmpty(rr.start, rr.length); err != nil {
			return err
		}
		list = region.Intersection(slice, list)
	}

	if err := checkPartMap(d, list, p.Force); err != nil {
		return err
	}

	memType := flash.FLASH
	if rr.has {
		memType = rr.memType
	}

	logger.Logf("program", "writing %s", list)
	for _, r := range list.Regions() {
		if err := writeRegion(e, d.FlashBlockSize, memType, r); err != nil {
			return err
		}
	}
	return nil
}

// writeRegion dispatches one region to the engine. FLASH/EEPROM are split
// into block-aligned chunks - the engine's WriteBlock always splices new
// data onto the start of the block at addr, so every chunk here must begin
// on a block boundary even when the region itself does not.
func writeRegion(e *flash.Engine, blockSize uint32, m flash.MemType, r *region.Region) error {
	switch m {
	case flash.RAM:
		return e.WriteBlock(flash.RAM, r.Start, r.Data, false)
	case flash.OPT:
		return e.WriteOption(r.Start, r.Data)
	}

	blockStart := r.Start - (r.Start % blockSize)
	for blockStart < r.End {
		buf := make([]byte, blockSize)
		if err := e.ReadBlock(blockStart, buf); err != nil {
			return err
		}

		lo, hi := r.Start, r.End
		if lo < blockStart {
			lo = blockStart
		}
		if hi > blockStart+blockSize {
			hi = blockStart + blockSize
		}
		copy(buf[lo-blockStart:hi-blockStart], r.Data[lo-r.Start:hi-r.Start])

		if err := e.WriteBlock(m, blockStart, buf, true); err != nil {
			return err
		}
		blockStart += blockSize
	}
	return nil
}

// regionBounds returns the declared [start, start+size) for one memory
// kind of a descriptor; size 0 means the descriptor has none (e.g. no
// separate EEPROM on parts where it overlays flash).
func regionBounds(d mcu.Descriptor, m flash.MemType) (start, size uint32) {
	switch m {
	case flash.FLASH:
		return d.FlashStart, d.FlashSize
	case flash.EEPROM:
		return d.EEPROMStart, d.EEPROMSize
	case flash.RAM:
		return d.RAMStart, d.RAMSize
	case flash.OPT:
		return d.OptionBytesStart, d.OptionBytesSize
	}
	return 0, 0
}

// checkPartMap fails with RangeError unless every region in list falls
// within one of d's declared memory areas; force downgrades this to a
// logged warning, per spec.
func checkPartMap(d mcu.Descriptor, list *region.List, force bool) error {
	kinds := []flash.MemType{flash.FLASH, flash.EEPROM, flash.RAM, flash.OPT}
	for _, r := range list.Regions() {
		inside := false
		for _, k := range kinds {
			start, size := regionBounds(d, k)
			if size == 0 {
				continue
			}
			if r.Start >= start && r.End <= start+size {
				inside = true
				break
			}
		}
		if !inside {
			if force {
				logger.Logf("program", "warning: region [%#06x:%#06x) outside declared memory map, proceeding (-force)", r.Start, r.End)
				continue
			}
			return errors.Errorf(errors.RangeError, r.Start)
		}
	}
	return nil
}

func readImage(r io.Reader, f Format) (*region.List, error) {
	switch f {
	case FormatIHex:
		return ihex.Read(r)
	case FormatSRec:
		return srec.Read(r)
	default:
		return binary.Read(r)
	}
}

func writeImage(w io.Writer, f Format, list *region.List) error {
	switch f {
	case FormatIHex:
		return ihex.Write(w, list)
	case FormatSRec:
		return srec.Write(w, list)
	default:
		return binary.Write(w, list)
	}
}

func listParts(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "%-12s %10s %10s %10s %6s %s\n", "part", "flash", "eeprom", "ram", "block", "rop")
	for _, d := range mcu.Registry {
		fmt.Fprintf(w, "%-12s %10d %10d %10d %6d %s\n", d.Name, d.FlashSize, d.EEPROMSize, d.RAMSize, d.FlashBlockSize, d.ROPMode)
	}
}

func listAdapters(w io.Writer) {
	if w == nil {
		return
	}
	for _, name := range AdapterNames {
		fmt.Fprintln(w, name)
	}
}
