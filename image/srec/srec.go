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

// Package srec reads and writes the Motorola S-Record format over a
// region.List.
package srec

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/region"
)

// addrBytes gives the address field width, in bytes, for each record type.
var addrBytes = map[byte]int{
	'0': 2,
	'1': 2,
	'2': 3,
	'3': 4,
	'5': 2,
	'7': 4,
	'8': 3,
	'9': 2,
}

// Read parses S-Records from r into a new region list.
func Read(r io.Reader) (*region.List, error) {
	list := &region.List{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		addr, data, typ, err := parseRecord(line)
		if err != nil {
			return nil, errors.Errorf(errors.FormatError, "srec", lineNo, err)
		}

		switch typ {
		case '1', '2', '3':
			if err := list.Add(addr, data); err != nil {
				return nil, errors.Errorf(errors.FormatError, "srec", lineNo, err)
			}
		case '0', '5', '7', '8', '9':
			// header/count/terminator records are checked for well-formedness
			// above but otherwise carry no data for the region model.
		default:
			return nil, errors.Errorf(errors.FormatError, "srec", lineNo, fmt.Sprintf("unsupported record type S%c", typ))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}
	return list, nil
}

func parseRecord(line string) (addr uint32, data []byte, typ byte, err error) {
	if len(line) < 4 || line[0] != 'S' {
		return 0, nil, 0, fmt.Errorf("missing 'S' marker")
	}
	typ = line[1]

	nbytes, ok := addrBytes[typ]
	if !ok {
		return 0, nil, 0, fmt.Errorf("unrecognised record type S%c", typ)
	}

	raw, err := hex.DecodeString(line[2:])
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid hex digits: %w", err)
	}
	if len(raw) < 1+nbytes {
		return 0, nil, 0, fmt.Errorf("record too short")
	}

	length := int(raw[0])
	if len(raw) != length+1 {
		return 0, nil, 0, fmt.Errorf("length field %d does not match record size", length)
	}

	sum := byte(0)
	for _, b := range raw {
		sum += b
	}
	if sum != 0xFF {
		return 0, nil, 0, fmt.Errorf("checksum mismatch")
	}

	a := uint32(0)
	for i := 0; i < nbytes; i++ {
		a = a<<8 | uint32(raw[1+i])
	}

	payloadStart := 1 + nbytes
	payloadEnd := len(raw) - 1
	return a, raw[payloadStart:payloadEnd], typ, nil
}

// Write emits list as S3 records (32-bit addresses) with at most 16 bytes
// of data each.
func Write(w io.Writer, list *region.List) error {
	for _, r := range list.Regions() {
		addr := r.Start
		data := r.Data
		for len(data) > 0 {
			n := len(data)
			if n > 16 {
				n = 16
			}
			if err := writeRecord(w, '3', addr, data[:n]); err != nil {
				return err
			}
			addr += uint32(n)
			data = data[n:]
		}
	}
	return nil
}

func writeRecord(w io.Writer, typ byte, addr uint32, data []byte) error {
	nbytes := addrBytes[typ]

	buf := make([]byte, 0, 1+nbytes+len(data))
	buf = append(buf, byte(nbytes+len(data)+1))
	for i := nbytes - 1; i >= 0; i-- {
		buf = append(buf, byte(addr>>(8*uint(i))))
	}
	buf = append(buf, data...)

	sum := byte(0)
	for _, b := range buf {
		sum += b
	}
	buf = append(buf, ^sum)

	_, err := fmt.Fprintf(w, "S%c%s\n", typ, strings.ToUpper(hex.EncodeToString(buf)))
	return err
}
