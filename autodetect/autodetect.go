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

// Package autodetect identifies an attached, unknown MCU by probing its
// ID locations, stack pointer, and boot-ROM presence over an already-open
// SWIM session, and resolving the result against a fixed table of known
// silicon revisions.
package autodetect

import (
	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/logger"
	"github.com/vdudouyt/stm8flash/mcu"
	"github.com/vdudouyt/stm8flash/swim"
)

const (
	flashStart   = 0x8000
	bootromStart = 0x6000
	ramStart     = 0x0000

	swimSPH = 0x7f08 // 2 bytes: SPH, SPL
	swimPCE = 0x7f01 // 3 bytes: PCE, PCH, PCL

	ropSentinelByte = 0x71
)

var idAddresses = []struct {
	addr uint32
	mask uint32
}{
	{0x4FFC, 0xFFFF0000},
	{0x67F0, 0x0000FF00},
	{0x67F1, 0x0000FFFF},
}

// Entry is one row of the fixed ID-to-descriptor table, mirroring the real
// autodetection table's fields (type ID location/value, size bounds,
// boot-ROM and unique-ID expectations).
type Entry struct {
	TypeIDAddress uint32
	TypeIDValue   uint32
	Name          string

	RAMSize uint32

	FlashMinSize   uint32
	FlashMaxSize   uint32
	FlashBlockSize uint32

	EEPROMBaseAddress uint32
	EEPROMMinSize     uint32
	EEPROMMaxSize     uint32

	UniqueIDAddress    uint32
	UniqueIDAddressLen uint32

	HasBootrom bool
	ROPMode    mcu.ROPMode
	Regs       mcu.Regs
}

// Table is the fixed set of known ID/size combinations, seeded from the
// real autodetection table this package is grounded on.
var Table = []Entry{
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x37394241, Name: "STM8AF/STM8S005", RAMSize: 2 * 1024, FlashMinSize: 16 * 1024, FlashMaxSize: 32 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 640, EEPROMMaxSize: 1024, UniqueIDAddress: 0x48CD, UniqueIDAddressLen: 0, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x37394241, Name: "STM8S105", RAMSize: 2 * 1024, FlashMinSize: 16 * 1024, FlashMaxSize: 32 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 1024, EEPROMMaxSize: 1024, UniqueIDAddress: 0x48CD, UniqueIDAddressLen: 12, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x37394341, Name: "STM8AF51/STM8AH51 128k", RAMSize: 6 * 1024, FlashMinSize: 128 * 1024, FlashMaxSize: 128 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 0, EEPROMMaxSize: 0xFFFF, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x37394341, Name: "STM8AF51/STM8AH51 256k", RAMSize: 12 * 1024, FlashMinSize: 256 * 1024, FlashMaxSize: 256 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 0, EEPROMMaxSize: 0xFFFF, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x79314141, Name: "STLUX", RAMSize: 2 * 1024, FlashMinSize: 32 * 1024, FlashMaxSize: 32 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 1024, EEPROMMaxSize: 1024, UniqueIDAddress: 0x48E0, UniqueIDAddressLen: 8, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F0, TypeIDValue: 0x79314141, Name: "STNRG", RAMSize: 6 * 1024, FlashMinSize: 32 * 1024, FlashMaxSize: 32 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 1024, EEPROMMaxSize: 1024, UniqueIDAddress: 0x48E0, UniqueIDAddressLen: 8, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F1, TypeIDValue: 0x55576588, Name: "STM8AF51/STM8AH51 32k", RAMSize: 2 * 1024, FlashMinSize: 32 * 1024, FlashMaxSize: 32 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 0, EEPROMMaxSize: 0xFFFF, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F1, TypeIDValue: 0x55576588, Name: "STM8AF51/STM8AH51 48k", RAMSize: 3 * 1024, FlashMinSize: 48 * 1024, FlashMaxSize: 48 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 0, EEPROMMaxSize: 0xFFFF, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F1, TypeIDValue: 0x55576588, Name: "STM8AF51/STM8AH51 64k", RAMSize: 4 * 1024, FlashMinSize: 64 * 1024, FlashMaxSize: 64 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 0, EEPROMMaxSize: 0xFFFF, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F1, TypeIDValue: 0x55576588, Name: "STM8AF52/STM8AF62", RAMSize: 6 * 1024, FlashMinSize: 64 * 1024, FlashMaxSize: 128 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 1024, EEPROMMaxSize: 2048, UniqueIDAddress: 0x48CD, UniqueIDAddressLen: 0, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x67F1, TypeIDValue: 0x55576588, Name: "STM8S208", RAMSize: 6 * 1024, FlashMinSize: 64 * 1024, FlashMaxSize: 128 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 1024, EEPROMMaxSize: 2048, UniqueIDAddress: 0x48CD, UniqueIDAddressLen: 12, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67581000, Name: "STM8Lx5", RAMSize: 1 * 1024, FlashMinSize: 8 * 1024, FlashMaxSize: 8 * 1024, FlashBlockSize: 64, EEPROMBaseAddress: 0x1000, EEPROMMinSize: 256, EEPROMMaxSize: 256, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67611000, Name: "STM8Lx01/STM8AL30xx", RAMSize: 1*1024 + 512, FlashMinSize: 4 * 1024, FlashMaxSize: 8 * 1024, FlashBlockSize: 64, EEPROMBaseAddress: 0x0, EEPROMMinSize: 0, EEPROMMaxSize: 0, UniqueIDAddress: 0x4925, UniqueIDAddressLen: 6, HasBootrom: false, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67641000, Name: "STM8AL31/STM8AL3L/STM8L151", RAMSize: 2 * 1024, FlashMinSize: 8 * 1024, FlashMaxSize: 64 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x1000, EEPROMMinSize: 1024, EEPROMMaxSize: 2048, UniqueIDAddress: 0x4926, UniqueIDAddressLen: 6, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67671000, Name: "STM8Sx03", RAMSize: 1 * 1024, FlashMinSize: 4 * 1024, FlashMaxSize: 8 * 1024, FlashBlockSize: 64, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 640, EEPROMMaxSize: 640, UniqueIDAddress: 0x4865, UniqueIDAddressLen: 12, HasBootrom: false, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67681000, Name: "STM8L15x", RAMSize: 2 * 1024, FlashMinSize: 32 * 1024, FlashMaxSize: 64 * 1024, FlashBlockSize: 128, EEPROMBaseAddress: 0x1000, EEPROMMinSize: 1024, EEPROMMaxSize: 1024, UniqueIDAddress: 0x4926, UniqueIDAddressLen: 6, HasBootrom: true, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67691000, Name: "STM8TL5", RAMSize: 4 * 1024, FlashMinSize: 16 * 1024, FlashMaxSize: 16 * 1024, FlashBlockSize: 64, EEPROMBaseAddress: 0, EEPROMMinSize: 0, EEPROMMaxSize: 0, UniqueIDAddress: 0x4925, UniqueIDAddressLen: 6, HasBootrom: false, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
	{TypeIDAddress: 0x4FFC, TypeIDValue: 0x67991000, Name: "STM8AF62", RAMSize: 1 * 1024, FlashMinSize: 4 * 1024, FlashMaxSize: 8 * 1024, FlashBlockSize: 64, EEPROMBaseAddress: 0x4000, EEPROMMinSize: 640, EEPROMMaxSize: 640, UniqueIDAddress: 0x4865, UniqueIDAddressLen: 12, HasBootrom: false, ROPMode: mcu.ROPStyleSTM8S, Regs: stm8sRegs},
}

// stm8sRegs matches mcu's register layout for this family; every table row
// here targets a part from the STM8S/STM8AF/STM8AL/STM8L family sharing
// this layout in the retrieved source.
var stm8sRegs = mcu.Regs{
	ClkCkdivr:  0x50c6,
	FlashPukr:  0x5062,
	FlashDukr:  0x5064,
	FlashIapsr: 0x505f,
	FlashCr2:   0x505b,
	FlashNcr2:  0x505c,
}

func readU32(s *swim.Session, addr uint32) (uint32, error) {
	var b [4]byte
	if err := s.ReadBlock(addr, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func allBytesEqual(v uint32, nbytes int, b byte) bool {
	want := uint32(0)
	for i := 0; i < nbytes; i++ {
		want = want<<8 | uint32(b)
	}
	mask := uint32(0xFFFFFFFF)
	if nbytes < 4 {
		mask >>= (4 - nbytes) * 8
	}
	return v&mask == want
}

// Detect runs the ID/RAM/boot-ROM/unique-ID probe sequence over an
// already-open session and resolves the result against Table.
func Detect(s *swim.Session) (mcu.Descriptor, error) {
	var zero mcu.Descriptor

	flashFirst, err := readU32(s, flashStart)
	if err != nil {
		return zero, err
	}
	if allBytesEqual(flashFirst, 4, ropSentinelByte) {
		return zero, errors.Errorf(errors.ROPActive, "flash reads as the SWIM read-while-ROP sentinel")
	}

	var sp [2]byte
	if err := s.ReadBlock(swimSPH, sp[:]); err != nil {
		return zero, err
	}
	ramSize := uint32(sp[0])<<8 | uint32(sp[1])
	ramSize++
	logger.Logf("autodetect", "stack pointer 0x%04x, inferred RAM size %d bytes", ramSize-1, ramSize)

	bootromFirst, err := readU32(s, bootromStart)
	if err != nil {
		return zero, err
	}
	hasBootrom := !allBytesEqual(bootromFirst, 4, ropSentinelByte)

	var pc [3]byte
	if err := s.ReadBlock(swimPCE, pc[:]); err != nil {
		return zero, err
	}
	logger.Logf("autodetect", "program counter 0x%02x%02x%02x", pc[0], pc[1], pc[2])

	var accepted *Entry
	var flashSize, eepromSize uint32

	for _, loc := range idAddresses {
		idValue, err := readU32(s, loc.addr)
		if err != nil {
			return zero, err
		}
		if idValue == 0 || allBytesEqual(idValue, 4, ropSentinelByte) {
			continue
		}

		for i := range Table {
			e := &Table[i]
			if e.TypeIDAddress != loc.addr {
				continue
			}
			if (idValue & loc.mask) != (e.TypeIDValue & loc.mask) {
				continue
			}
			if e.RAMSize != ramSize {
				continue
			}

			if hasBootrom != e.HasBootrom {
				continue
			}

			if e.UniqueIDAddress != 0 {
				uid, err := readU32(s, e.UniqueIDAddress)
				if err != nil {
					return zero, err
				}
				isEmpty := uid == 0 || allBytesEqual(uid, 4, ropSentinelByte)
				if e.UniqueIDAddressLen > 0 && isEmpty {
					continue
				}
				if e.UniqueIDAddressLen == 0 && !isEmpty {
					continue
				}
			}

			if accepted == nil {
				accepted = e
				flashSize = e.FlashMinSize
				eepromSize = e.EEPROMMinSize
				continue
			}

			if e.FlashBlockSize != accepted.FlashBlockSize || e.EEPROMBaseAddress != accepted.EEPROMBaseAddress {
				return zero, errors.Errorf(errors.ConflictError, "ambiguous match between "+accepted.Name+" and "+e.Name)
			}
			if e.FlashMinSize < flashSize {
				flashSize = e.FlashMinSize
			}
			if e.EEPROMMinSize < eepromSize {
				eepromSize = e.EEPROMMinSize
			}
		}
	}

	if accepted == nil {
		return zero, errors.Errorf(errors.NotFoundError)
	}

	return mcu.Descriptor{
		Name:             accepted.Name,
		RAMStart:         ramStart,
		RAMSize:          accepted.RAMSize,
		EEPROMStart:      accepted.EEPROMBaseAddress,
		EEPROMSize:       eepromSize,
		FlashStart:       flashStart,
		FlashSize:        flashSize,
		FlashBlockSize:   accepted.FlashBlockSize,
		OptionBytesStart: 0,
		OptionBytesSize:  0,
		ROPMode:          accepted.ROPMode,
		Regs:             accepted.Regs,
	}, nil
}
