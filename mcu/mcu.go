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

// Package mcu holds the static registry of supported STM8 variants: their
// memory map, flash block granularity, peripheral register addresses and
// readout-protection dialect. The registry is immutable and process-wide;
// the only Descriptor built outside it is the one autodetect derives from
// its own probe table.
package mcu

import "strings"

// ROPMode selects which of the two hardware readout-protection unlock
// dialects a part implements.
type ROPMode int

const (
	ROPUnknown ROPMode = iota
	ROPStyleSTM8S
	ROPStyleSTM8L
)

func (m ROPMode) String() string {
	switch m {
	case ROPStyleSTM8S:
		return "STM8S-style"
	case ROPStyleSTM8L:
		return "STM8L-style"
	default:
		return "unknown"
	}
}

// Regs names the peripheral register addresses a block write needs. A zero
// FlashNCR2 means the part has no inverse control register.
type Regs struct {
	ClkCkdivr  uint32
	FlashPukr  uint32
	FlashDukr  uint32
	FlashIapsr uint32
	FlashCr2   uint32
	FlashNcr2  uint32
}

// regsSTM8S and regsSTM8L are the two register-layout families every
// descriptor below draws from; addresses per the datasheet families this
// tool targets.
var regsSTM8S = Regs{
	ClkCkdivr:  0x50c6,
	FlashPukr:  0x5062,
	FlashDukr:  0x5064,
	FlashIapsr: 0x505f,
	FlashCr2:   0x505b,
	FlashNcr2:  0x505c,
}

var regsSTM8L = Regs{
	ClkCkdivr:  0x50c6,
	FlashPukr:  0x5052,
	FlashDukr:  0x5053,
	FlashIapsr: 0x5054,
	FlashCr2:   0x5051,
	FlashNcr2:  0x0000,
}

// Descriptor is an immutable record describing one MCU variant. Part names
// may contain '?' wildcards matched by Lookup.
type Descriptor struct {
	Name string

	RAMStart uint32
	RAMSize  uint32

	EEPROMStart uint32
	EEPROMSize  uint32

	FlashStart      uint32
	FlashSize       uint32
	FlashBlockSize  uint32

	// OptionBytesStart/Size describe the legacy whole-option-bytes unlock
	// region; OptionBytesSize is 0 for parts only supporting the
	// single-byte ROP dialect at 0x4800.
	OptionBytesStart uint32
	OptionBytesSize  uint32

	ROPMode ROPMode
	Regs    Regs
}

// Registry is the process-wide, immutable list of known descriptors.
var Registry = []Descriptor{
	{Name: "stlux???a", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x4000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af526?", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af528?", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 64 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af52a?", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 128 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af6213", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x4000, EEPROMSize: 640, FlashStart: 0x8000, FlashSize: 4 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af6223", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x4000, EEPROMSize: 640, FlashStart: 0x8000, FlashSize: 8 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af624?", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x4000, EEPROMSize: 512, FlashStart: 0x8000, FlashSize: 16 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af6269", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8af628?", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 64 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8al313?", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 8 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8al314?", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 16 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l051f3", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x1000, EEPROMSize: 256, FlashStart: 0x8000, FlashSize: 8 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l052c6", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 256, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l052r8", RAMStart: 0x0000, RAMSize: 4 * 1024, EEPROMStart: 0x1000, EEPROMSize: 256, FlashStart: 0x8000, FlashSize: 64 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l101f1", RAMStart: 0x0000, RAMSize: 0x05FF, EEPROMStart: 0x9FFF, EEPROMSize: 0, FlashStart: 0x8000, FlashSize: 2 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l101?2", RAMStart: 0x0000, RAMSize: 0x05FF, EEPROMStart: 0x9FFF, EEPROMSize: 0, FlashStart: 0x8000, FlashSize: 4 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l151?2", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x1000, EEPROMSize: 256, FlashStart: 0x8000, FlashSize: 4 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l151?4", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 16 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l151?6", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l152?6", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8l162?8", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x1000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 64 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8L, Regs: regsSTM8L},
	{Name: "stm8s003?3", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x4000, EEPROMSize: 128, FlashStart: 0x8000, FlashSize: 8 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8s105?4", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x4000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 16 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8s105?6", RAMStart: 0x0000, RAMSize: 2 * 1024, EEPROMStart: 0x4000, EEPROMSize: 1024, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8s207?6", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 32 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8s208?b", RAMStart: 0x0000, RAMSize: 6 * 1024, EEPROMStart: 0x4000, EEPROMSize: 2048, FlashStart: 0x8000, FlashSize: 128 * 1024, FlashBlockSize: 128, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
	{Name: "stm8s903?3", RAMStart: 0x0000, RAMSize: 1 * 1024, EEPROMStart: 0x4000, EEPROMSize: 128, FlashStart: 0x8000, FlashSize: 8 * 1024, FlashBlockSize: 64, ROPMode: ROPStyleSTM8S, Regs: regsSTM8S},
}

// matchName implements the spec's wildcard comparison: every character of
// s must equal the descriptor character, its case-folded equivalent, or the
// descriptor character must be '?'.
func matchName(pattern, s string) bool {
	if len(pattern) != len(s) {
		return false
	}
	for i := 0; i < len(pattern); i++ {
		p := pattern[i]
		if p == '?' {
			continue
		}
		if p != s[i] && strings.ToUpper(string(p)) != strings.ToUpper(string(s[i])) {
			return false
		}
	}
	return true
}

// Lookup finds the first descriptor whose name wildcard-matches s,
// case-insensitively. Ok is false if nothing matches.
func Lookup(s string) (Descriptor, bool) {
	for _, d := range Registry {
		if matchName(d.Name, s) {
			return d, true
		}
	}
	return Descriptor{}, false
}
