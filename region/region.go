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

// Package region models an ordered, non-overlapping set of address-tagged
// byte runs: the in-memory representation shared by every image codec and
// fed to and drained from the flash programming engine. A List is a singly
// linked chain of Region nodes kept sorted by Start; the invariant - no two
// regions overlap, none has zero length - holds after every exported
// operation.
package region

import (
	"fmt"

	"github.com/vdudouyt/stm8flash/errors"
)

// Region is a half-open address interval [Start, End) with an owned byte
// buffer of length End-Start.
type Region struct {
	Start uint32
	End   uint32
	Data  []byte

	next *Region
}

func newRegion(start uint32, b []byte) *Region {
	data := make([]byte, len(b))
	copy(data, b)
	return &Region{
		Start: start,
		End:   start + uint32(len(b)),
		Data:  data,
	}
}

// List is an ordered, non-overlapping chain of regions.
type List struct {
	head *Region
}

// Regions returns a snapshot of the regions in the list, ordered by Start.
func (l *List) Regions() []*Region {
	var out []*Region
	for r := l.head; r != nil; r = r.next {
		out = append(out, r)
	}
	return out
}

// Empty reports whether the list holds no regions.
func (l *List) Empty() bool {
	return l.head == nil
}

// Free releases every region in the list. In Go this just drops references
// for the garbage collector, but it mirrors the explicit release contract
// every other backend of this engine (USB handles, serial file descriptors)
// is held to, and gives callers one place to call at scope exit.
func (l *List) Free() {
	l.head = nil
}

// Add splices bytes into the list at the given address, per spec: if it
// abuts an existing region's End it extends that region (truncating to fill
// any gap before the next region, continuing with the remainder as a new
// region); otherwise it fails with OverlapError if [start, start+len(b))
// intersects an existing region without abutting from below.
func (l *List) Add(start uint32, b []byte) error {
	pp := &l.head
	for *pp != nil {
		r := *pp
		if r.End == start {
			available := uint32(len(b))
			if r.next != nil {
				available = r.next.Start - r.End
			}
			copyLen := min32(available, uint32(len(b)))

			r.Data = append(r.Data, b[:copyLen]...)
			r.End += copyLen

			b = b[copyLen:]
			start += copyLen
		} else if start < r.Start {
			end := start + uint32(len(b))
			if end > r.Start {
				return errors.Errorf(errors.OverlapError, start, end, r.Start, r.End)
			}
			n := newRegion(start, b)
			n.next = r
			*pp = n
			return nil
		} else if r.End >= start && start >= r.Start {
			return errors.Errorf(errors.OverlapError, start, start+uint32(len(b)), r.Start, r.End)
		}

		if len(b) == 0 {
			return nil
		}

		pp = &r.next
	}

	if len(b) > 0 {
		*pp = newRegion(start, b)
	}
	return nil
}

// AddEmpty inserts a zero-filled region of length n at start.
func (l *List) AddEmpty(start uint32, n uint32) error {
	return l.Add(start, make([]byte, n))
}

// Get copies out len(out) bytes starting at start, spanning contiguous
// regions. It fails if any byte in the requested range is not present.
func (l *List) Get(start uint32, out []byte) error {
	need := uint32(len(out))
	pos := 0
	for r := l.head; r != nil && need > 0; r = r.next {
		if r.Start <= start && start < r.End {
			available := r.End - start
			copyLen := min32(available, need)
			copy(out[pos:pos+int(copyLen)], r.Data[start-r.Start:])
			pos += int(copyLen)
			start += copyLen
			need -= copyLen
		}
	}
	if need > 0 {
		return errors.Errorf(errors.RangeError, start)
	}
	return nil
}

// Contiguous reports whether the list is a single run with no gaps - the
// precondition for the raw-binary writer.
func (l *List) Contiguous() bool {
	if l.head == nil {
		return true
	}
	for r := l.head; r.next != nil; r = r.next {
		if r.End != r.next.Start {
			return false
		}
	}
	return true
}

// Shift adds delta to every region's Start and End. Used to anchor a
// raw-binary file, which carries no address of its own, to a user-chosen
// load address.
func (l *List) Shift(delta int64) {
	for r := l.head; r != nil; r = r.next {
		r.Start = uint32(int64(r.Start) + delta)
		r.End = uint32(int64(r.End) + delta)
	}
}

// Intersection produces a new list containing, for every byte present in
// both src and dst at the same address, that byte taken from src.
func Intersection(dst, src *List) *List {
	out := &List{}
	for _, s := range src.Regions() {
		start := s.Start
		for start < s.End {
			found := false
			for _, d := range dst.Regions() {
				if d.Start <= start && start < d.End {
					copyLen := min32(d.End-start, s.End-start)
					_ = out.Add(start, s.Data[start-s.Start:start-s.Start+copyLen])
					start += copyLen
					found = true
					break
				}
			}
			if !found {
				next := s.End
				for _, d := range dst.Regions() {
					if d.Start > start && d.Start < next {
						next = d.Start
					}
				}
				start = next
			}
		}
	}
	return out
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// String renders the list as a compact summary of its address ranges, used
// in progress logging.
func (l *List) String() string {
	s := ""
	for i, r := range l.Regions() {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("[%#06x:%#06x)", r.Start, r.End)
	}
	return s
}
