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

package binary_test

import (
	"bytes"
	"testing"

	"github.com/vdudouyt/stm8flash/image/binary"
	"github.com/vdudouyt/stm8flash/region"
	"github.com/vdudouyt/stm8flash/sttest"
)

func TestReadAnchorsAtZero(t *testing.T) {
	list, err := binary.Read(bytes.NewReader([]byte{0x01, 0x02, 0x03}))
	sttest.ExpectSuccess(t, err)

	out := make([]byte, 3)
	sttest.ExpectSuccess(t, list.Get(0, out))
	sttest.ExpectBytesEqual(t, out, []byte{0x01, 0x02, 0x03})
}

func TestReadEmpty(t *testing.T) {
	list, err := binary.Read(bytes.NewReader(nil))
	sttest.ExpectSuccess(t, err)
	sttest.ExpectEquality(t, list.Empty(), true)
}

func TestWriteContiguous(t *testing.T) {
	list := &region.List{}
	sttest.ExpectSuccess(t, list.Add(0, []byte{0x01, 0x02}))
	sttest.ExpectSuccess(t, list.Add(2, []byte{0x03, 0x04}))

	var buf bytes.Buffer
	sttest.ExpectSuccess(t, binary.Write(&buf, list))
	sttest.ExpectBytesEqual(t, buf.Bytes(), []byte{0x01, 0x02, 0x03, 0x04})
}

func TestWriteGapFails(t *testing.T) {
	list := &region.List{}
	sttest.ExpectSuccess(t, list.Add(0, []byte{0x01}))
	sttest.ExpectSuccess(t, list.Add(0x100, []byte{0x02}))

	var buf bytes.Buffer
	sttest.ExpectFailure(t, binary.Write(&buf, list))
}

func TestRoundTripViaShift(t *testing.T) {
	list, err := binary.Read(bytes.NewReader([]byte{0xaa, 0xbb}))
	sttest.ExpectSuccess(t, err)
	list.Shift(0x8000)

	out := make([]byte, 2)
	sttest.ExpectSuccess(t, list.Get(0x8000, out))
	sttest.ExpectBytesEqual(t, out, []byte{0xaa, 0xbb})
}
