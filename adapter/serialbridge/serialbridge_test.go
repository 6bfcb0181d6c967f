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

package serialbridge

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vdudouyt/stm8flash/logger"
	"github.com/vdudouyt/stm8flash/sttest"
)

// fakePort is an in-memory port: writes are recorded, reads drain a
// pre-seeded response queue, letting tests script the device side of the
// conversation without a real serial line.
type fakePort struct {
	writes [][]byte
	reads  bytes.Buffer
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.writes = append(p.writes, cp)
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.reads.Read(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) queue(b ...byte) {
	p.reads.Write(b)
}

func newTestAdapter() (*Adapter, *fakePort) {
	p := &fakePort{}
	return &Adapter{p: p}, p
}

func TestCheckVersionAcceptsZero(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdVersion, statusOK, 0x00, 0x00)
	sttest.ExpectSuccess(t, a.checkVersion())
}

func TestCheckVersionRejectsNonzero(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdVersion, statusOK, 0x00, 0x01)
	sttest.ExpectFailure(t, a.checkVersion())
}

func TestErrorCheckDeviceError(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdRead, statusError, 0x00, 0x02)
	err := a.errorCheck(cmdRead, make([]byte, 4))
	sttest.ExpectFailure(t, err)
}

func TestErrorCheckWrongCommandEcho(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdWrite, statusOK)
	err := a.errorCheck(cmdRead, nil)
	sttest.ExpectFailure(t, err)
}

func TestReadBytesSplitsAtMaxReadSplit(t *testing.T) {
	a, p := newTestAdapter()

	total := maxReadSplit + 10
	for _, n := range []int{maxReadSplit, 10} {
		p.queue(cmdRead, statusOK)
		p.reads.Write(make([]byte, n))
	}

	out := make([]byte, total)
	err := a.ReadBytes(0x8000, out)
	sttest.ExpectSuccess(t, err)
	sttest.ExpectEquality(t, len(p.writes), 2)
}

func TestWriteBytesSplitsAtMaxWriteSplit(t *testing.T) {
	a, p := newTestAdapter()

	total := maxWriteSplit + 5
	p.queue(cmdWrite, statusOK)
	p.queue(cmdWrite, statusOK)

	err := a.WriteBytes(0x8000, make([]byte, total))
	sttest.ExpectSuccess(t, err)

	// two command headers plus two payload writes == 4 Write() calls
	sttest.ExpectEquality(t, len(p.writes), 4)
}

func TestSoftResetSendsCommandByte(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdSoftReset, statusOK)
	sttest.ExpectSuccess(t, a.SoftReset())
	sttest.ExpectEquality(t, p.writes[0][0], byte(cmdSoftReset))
}

func TestEntrySequenceWarnsOutsideExpectedRange(t *testing.T) {
	a, p := newTestAdapter()
	p.queue(cmdEntrySeq, statusOK, 0x00, 0x32) // 50 cycles, well outside 1200-1360
	sttest.ExpectSuccess(t, a.entrySequence())

	var log strings.Builder
	logger.Tail(&log, 1)
	sttest.ExpectEquality(t, strings.Contains(log.String(), "measured 50 cycles"), true)
}

func TestClosePropagatesToPort(t *testing.T) {
	a, p := newTestAdapter()
	sttest.ExpectSuccess(t, a.Close())
	sttest.ExpectEquality(t, p.closed, true)
}

func TestReadBufSize(t *testing.T) {
	a, _ := newTestAdapter()
	sttest.ExpectEquality(t, a.ReadBufSize(), uint32(maxReadSplit))
}
