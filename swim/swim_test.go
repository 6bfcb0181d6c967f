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

package swim

import (
	"testing"

	"github.com/vdudouyt/stm8flash/sttest"
)

// fakeAdapter is an in-memory adapter.Adapter backed by a sparse byte map,
// letting Session's logic be exercised without any real transport.
type fakeAdapter struct {
	mem           map[uint32]byte
	softResets    int
	genResets     int
	assertCalls   int
	deassertCalls int
	closed        bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{mem: make(map[uint32]byte)}
}

func (f *fakeAdapter) ReadBytes(addr uint32, out []byte) error {
	for i := range out {
		out[i] = f.mem[addr+uint32(i)]
	}
	return nil
}

func (f *fakeAdapter) WriteBytes(addr uint32, b []byte) error {
	for i, v := range b {
		f.mem[addr+uint32(i)] = v
	}
	return nil
}

func (f *fakeAdapter) AssertReset() error   { f.assertCalls++; return nil }
func (f *fakeAdapter) DeassertReset() error { f.deassertCalls++; return nil }
func (f *fakeAdapter) GenerateReset() error { f.genResets++; return nil }
func (f *fakeAdapter) SoftReset() error     { f.softResets++; return nil }
func (f *fakeAdapter) ReadBufSize() uint32  { return 128 }
func (f *fakeAdapter) Close() error         { f.closed = true; return nil }

func TestOpenRejectsNilAdapter(t *testing.T) {
	_, err := Open(nil)
	sttest.ExpectFailure(t, err)
}

func TestReadWriteByte(t *testing.T) {
	fa := newFakeAdapter()
	s, err := Open(fa)
	sttest.ExpectSuccess(t, err)

	sttest.ExpectSuccess(t, s.WriteByte(0x8000, 0x42))
	got, err := s.ReadByte(0x8000)
	sttest.ExpectSuccess(t, err)
	sttest.ExpectEquality(t, got, byte(0x42))
}

func TestReadWriteBlock(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)

	want := []byte{1, 2, 3, 4, 5}
	sttest.ExpectSuccess(t, s.WriteBlock(0x9000, want))

	got := make([]byte, len(want))
	sttest.ExpectSuccess(t, s.ReadBlock(0x9000, got))
	sttest.ExpectBytesEqual(t, got, want)
}

func TestStallSetsAndClearsBit3(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)

	sttest.ExpectSuccess(t, s.Stall(true))
	v := fa.mem[RegDMCSR2]
	sttest.ExpectEquality(t, v&dmStall, byte(dmStall))

	sttest.ExpectSuccess(t, s.Stall(false))
	v = fa.mem[RegDMCSR2]
	sttest.ExpectEquality(t, v&dmStall, byte(0))
}

func TestSoftResetArmsRSTAndClearsStall(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)
	sttest.ExpectSuccess(t, s.Stall(true))

	sttest.ExpectSuccess(t, s.SoftReset())

	sttest.ExpectEquality(t, fa.mem[RegSwimCSR]&csrRST, byte(csrRST))
	sttest.ExpectEquality(t, fa.mem[RegDMCSR2]&dmStall, byte(0))
	sttest.ExpectEquality(t, fa.softResets, 1)
}

func TestGenResetAssertDeassertDelegateToAdapter(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)

	sttest.ExpectSuccess(t, s.GenReset())
	sttest.ExpectSuccess(t, s.AssertReset())
	sttest.ExpectSuccess(t, s.DeassertReset())

	sttest.ExpectEquality(t, fa.genResets, 1)
	sttest.ExpectEquality(t, fa.assertCalls, 1)
	sttest.ExpectEquality(t, fa.deassertCalls, 1)
}

func TestReadBufSizeDelegates(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)
	sttest.ExpectEquality(t, s.ReadBufSize(), uint32(128))
}

func TestCloseDelegates(t *testing.T) {
	fa := newFakeAdapter()
	s, _ := Open(fa)
	sttest.ExpectSuccess(t, s.Close())
	sttest.ExpectEquality(t, fa.closed, true)
}
