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

// Package version reports the application name and build version, the
// latter filled in at build time via -ldflags so a released binary can
// identify exactly what it was built from.
package version

import "fmt"

// ApplicationName is used as the flag.FlagSet name for the top-level CLI
// and in any banner logged at startup.
const ApplicationName = "stm8flash"

// number and commit are set with -ldflags "-X ...=...". Left blank in a
// plain go build, in which case Version() falls back to "development".
var (
	number string
	commit string
)

// Version returns a short version string and a longer revision string
// (normally the VCS commit). When not set at build time they read
// "development" and "unknown revision".
func Version() (string, string, error) {
	ver := number
	if ver == "" {
		ver = "development"
	}

	rev := commit
	if rev == "" {
		rev = "unknown revision"
	} else {
		rev = fmt.Sprintf("commit %s", rev)
	}

	return fmt.Sprintf("%s %s", ApplicationName, ver), rev, nil
}
