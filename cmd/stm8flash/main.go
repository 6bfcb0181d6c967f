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

// Command stm8flash reads, writes, verifies and unlocks STM8 microcontroller
// non-volatile memory over SWIM, through one of three ST-LINK USB probe
// generations or a serial-line bridge adapter.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gousb"

	"github.com/vdudouyt/stm8flash/adapter"
	"github.com/vdudouyt/stm8flash/adapter/serialbridge"
	"github.com/vdudouyt/stm8flash/adapter/stlinkv1"
	"github.com/vdudouyt/stm8flash/adapter/stlinkv2"
	stmerrors "github.com/vdudouyt/stm8flash/errors"
	"github.com/vdudouyt/stm8flash/logger"
	"github.com/vdudouyt/stm8flash/program"
	"github.com/vdudouyt/stm8flash/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flgs := flag.NewFlagSet(version.ApplicationName, flag.ContinueOnError)

	showVersion := flgs.Bool("version", false, "show version and exit")
	programmer := flgs.String("c", "", "programmer: stlink, stlinkv2, stlinkv21, stlinkv3, espstlink")
	serial := flgs.String("S", "", "restrict to the probe with this USB serial number")
	device := flgs.String("d", "", "serial device path, for -c espstlink")
	part := flgs.String("p", "", "MCU part name, '?' wildcards allowed; omit to autodetect")
	slice := flgs.String("s", "", "memory region: flash, eeprom, ram, opt, or a hex address")
	count := flgs.Uint("b", 0, "byte count")
	readFile := flgs.String("r", "", "read target memory into this file")
	writeFile := flgs.String("w", "", "write this file to target memory")
	verifyFile := flgs.String("v", "", "verify target memory against this file")
	unlock := flgs.Bool("u", false, "disable readout protection")
	lock := flgs.Bool("k", false, "enable readout protection")
	resetOnly := flgs.Bool("R", false, "reset target and exit")
	listParts := flgs.Bool("l", false, "list known parts")
	listPartsTable := flgs.Bool("t", false, "list known parts with memory sizes")
	listAdapters := flgs.Bool("L", false, "list supported programmers")
	force := flgs.Bool("force", false, "proceed past a memory-map range check")
	skipReset := flgs.Bool("no-reset", false, "skip the final target reset")
	verbose := flgs.Bool("v-log", false, "raise log verbosity to debug")
	quiet := flgs.Bool("q", false, "suppress log output")

	if err := flgs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *quiet {
		logger.SetOutput(io.Discard)
	}
	logger.SetVerbose(*verbose)

	if *showVersion {
		ver, rev, _ := version.Version()
		fmt.Println(ver)
		fmt.Println(rev)
		return 0
	}

	ver, rev, _ := version.Version()
	logger.Logf("stm8flash", "%s", ver)
	logger.Logf("stm8flash", "%s", rev)

	if *listParts || *listPartsTable {
		program.Run(program.Plan{Mode: program.ModeListParts, Output: os.Stdout})
		return 0
	}
	if *listAdapters {
		program.Run(program.Plan{Mode: program.ModeListAdapters, Output: os.Stdout})
		return 0
	}

	if *serial != "" {
		logger.Logf("stm8flash", "-S %s: USB serial-number filtering is not wired into the adapter backends, ignoring", *serial)
	}

	p := program.Plan{
		Part:      *part,
		Unlock:    *unlock,
		Lock:      *lock,
		Force:     *force,
		SkipReset: *skipReset,
	}

	switch {
	case *resetOnly:
		p.Mode = program.ModeReset
	case *readFile != "":
		p.Mode = program.ModeRead
	case *writeFile != "":
		p.Mode = program.ModeWrite
	case *verifyFile != "":
		p.Mode = program.ModeVerify
	case *unlock || *lock:
		p.Mode = program.ModeNone
	default:
		fmt.Fprintln(os.Stderr, "stm8flash: nothing to do; need one of -r, -w, -v, -u, -k or -R")
		return 1
	}

	p.RegionSpec = *slice
	p.RegionLenArg = uint32(*count)

	var fileErr error
	switch p.Mode {
	case program.ModeRead:
		f, err := os.Create(*readFile)
		if err != nil {
			fileErr = err
		} else {
			defer f.Close()
			p.Output = f
			p.Format = formatFor(*readFile)
		}
	case program.ModeWrite:
		f, err := os.Open(*writeFile)
		if err != nil {
			fileErr = err
		} else {
			defer f.Close()
			p.Image = f
			p.Format = formatFor(*writeFile)
		}
	case program.ModeVerify:
		f, err := os.Open(*verifyFile)
		if err != nil {
			fileErr = err
		} else {
			defer f.Close()
			p.Image = f
			p.Format = formatFor(*verifyFile)
		}
	}
	if fileErr != nil {
		fmt.Fprintln(os.Stderr, "stm8flash:", fileErr)
		return 1
	}

	a, closeAdapter, err := openAdapter(*programmer, *device)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stm8flash:", err)
		return 1
	}
	defer closeAdapter()
	p.Adapter = a

	if err := program.Run(p); err != nil {
		fmt.Fprintln(os.Stderr, "stm8flash:", err)
		return 1
	}
	return 0
}

// openAdapter dispatches the -c programmer name to its backend. The two
// USB generations share a gousb.Context whose lifetime is tied to the
// adapter's own.
func openAdapter(programmer, device string) (adapter.Adapter, func(), error) {
	switch programmer {
	case "stlink":
		ctx := gousb.NewContext()
		a, err := stlinkv1.Open(ctx)
		if err != nil {
			ctx.Close()
			return nil, nil, err
		}
		return a, func() { a.Close(); ctx.Close() }, nil
	case "stlinkv2", "stlinkv21", "stlinkv3":
		ctx := gousb.NewContext()
		a, err := stlinkv2.Open(ctx)
		if err != nil {
			ctx.Close()
			return nil, nil, err
		}
		return a, func() { a.Close(); ctx.Close() }, nil
	case "espstlink":
		if device == "" {
			return nil, nil, stmerrors.Errorf(stmerrors.IOError, "-c espstlink requires -d <device>")
		}
		a, err := serialbridge.Open(device)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { a.Close() }, nil
	case "":
		return nil, nil, stmerrors.Errorf(stmerrors.IOError, "missing -c <programmer>")
	default:
		return nil, nil, stmerrors.Errorf(stmerrors.IOError, fmt.Sprintf("unknown programmer %q", programmer))
	}
}

// formatFor infers an image codec from a filename extension; .bin and
// anything unrecognised default to raw binary, the format that carries no
// address metadata of its own.
func formatFor(name string) program.Format {
	switch {
	case strings.HasSuffix(name, ".hex") || strings.HasSuffix(name, ".ihx"):
		return program.FormatIHex
	case strings.HasSuffix(name, ".s19") || strings.HasSuffix(name, ".srec") || strings.HasSuffix(name, ".s37"):
		return program.FormatSRec
	default:
		return program.FormatBinary
	}
}
