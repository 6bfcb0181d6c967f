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

// Package binary reads and writes raw byte images over a region.List. A
// binary image carries no addresses of its own: Read always anchors the
// result at address 0, and callers are expected to region.List.Shift it
// into place before using it alongside an addressed image.
package binary

import (
	"io"

	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/region"
)

// Read slurps r into a single region anchored at address 0.
func Read(r io.Reader) (*region.List, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}

	list := &region.List{}
	if len(data) == 0 {
		return list, nil
	}
	if err := list.Add(0, data); err != nil {
		return nil, err
	}
	return list, nil
}

// Write emits the list as a single contiguous stream of bytes. It fails
// with GapError if the list has gaps.
func Write(w io.Writer, list *region.List) error {
	if !list.Contiguous() {
		return errors.Errorf(errors.GapError, "not contiguous: "+list.String())
	}

	for _, r := range list.Regions() {
		if _, err := w.Write(r.Data); err != nil {
			return errors.Errorf(errors.IOError, err)
		}
	}
	return nil
}
