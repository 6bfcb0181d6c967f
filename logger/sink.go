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

package logger

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// sink is the live terminal logger: every tag/detail pair recorded by Log/
// Logf also goes here, in addition to the ring buffer kept for Tail. The
// ring buffer is the historical record a postmortem dump reads back;
// sink is what a user watches scroll by during a run.
var sink = logrus.New()

func init() {
	sink.Out = colorable.NewColorableStdout()
	sink.Formatter = &prefixed.TextFormatter{
		ForceColors:      true,
		DisableTimestamp: true,
	}
	sink.SetLevel(logrus.InfoLevel)

	if os.Getenv("STM8FLASH_NO_COLOR") != "" {
		sink.Formatter = &prefixed.TextFormatter{DisableColors: true, DisableTimestamp: true}
	}
}

// SetVerbose raises the live sink to debug level, used by the CLI's -v-log
// flag; the ring buffer retains everything regardless of this setting.
func SetVerbose(v bool) {
	if v {
		sink.SetLevel(logrus.DebugLevel)
	} else {
		sink.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects the live sink, used by -q to silence it entirely
// (io.Discard).
func SetOutput(w io.Writer) {
	sink.Out = w
}

func toSink(tag, detail string) {
	sink.WithField("prefix", tag).Info(detail)
}
