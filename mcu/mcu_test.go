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

package mcu_test

import (
	"testing"

	"github.com/vdudouyt/stm8flash/mcu"
	"github.com/vdudouyt/stm8flash/sttest"
)

func TestLookupExact(t *testing.T) {
	d, ok := mcu.Lookup("stm8l052c6")
	sttest.ExpectEquality(t, ok, true)
	sttest.ExpectEquality(t, d.Name, "stm8l052c6")
	sttest.ExpectEquality(t, d.ROPMode, mcu.ROPStyleSTM8L)
}

func TestLookupWildcard(t *testing.T) {
	d, ok := mcu.Lookup("stm8s003f3")
	sttest.ExpectEquality(t, ok, true)
	sttest.ExpectEquality(t, d.Name, "stm8s003?3")
}

func TestLookupCaseInsensitive(t *testing.T) {
	_, ok := mcu.Lookup("STM8S003A3")
	sttest.ExpectEquality(t, ok, true)
}

func TestLookupLengthMismatchFails(t *testing.T) {
	_, ok := mcu.Lookup("stm8s003")
	sttest.ExpectEquality(t, ok, false)
}

func TestLookupNoMatch(t *testing.T) {
	_, ok := mcu.Lookup("nonexistent0")
	sttest.ExpectEquality(t, ok, false)
}

func TestNCR2ZeroForSTM8L(t *testing.T) {
	d, ok := mcu.Lookup("stm8l151?6")
	sttest.ExpectEquality(t, ok, true)
	sttest.ExpectEquality(t, d.Regs.FlashNcr2, uint32(0))
}

func TestNCR2SetForSTM8S(t *testing.T) {
	d, ok := mcu.Lookup("stm8s105?4")
	sttest.ExpectEquality(t, ok, true)
	sttest.ExpectEquality(t, d.Regs.FlashNcr2, uint32(0x505c))
}

func TestROPModeStringer(t *testing.T) {
	sttest.ExpectEquality(t, mcu.ROPStyleSTM8S.String(), "STM8S-style")
	sttest.ExpectEquality(t, mcu.ROPStyleSTM8L.String(), "STM8L-style")
	sttest.ExpectEquality(t, mcu.ROPUnknown.String(), "unknown")
}
