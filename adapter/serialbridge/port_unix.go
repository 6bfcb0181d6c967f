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

//go:build unix

package serialbridge

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/vdudouyt/stm8flash/errors"
)

// unixPort wraps a raw serial file descriptor configured via termios,
// matching the bridge firmware's fixed 115200 8N1 framing.
type unixPort struct {
	f *os.File
}

func openPort(device string, baud int) (port, error) {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, errors.Errorf(errors.IOError, err)
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		f.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}

	if baud != 115200 {
		f.Close()
		return nil, errors.Errorf(errors.UnsupportedError, "serialbridge", "only 115200 baud is supported")
	}

	cfmakeraw(t)
	t.Cflag |= unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		f.Close()
		return nil, errors.Errorf(errors.IOError, err)
	}

	return &unixPort{f: f}, nil
}

func (p *unixPort) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *unixPort) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *unixPort) Close() error                { return p.f.Close() }

// cfmakeraw mirrors the C library function of the same name: no line
// discipline, no echo, no signal generation, 8-bit characters.
func cfmakeraw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200
}
