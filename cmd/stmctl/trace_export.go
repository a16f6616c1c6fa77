/*
Copyright (C) 2026  gostm contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/launix-de/gostm/stm"
)

var currentTraceFile string

func runTraceCommand(out *bytes.Buffer, args []string) {
	if len(args) == 0 {
		fmt.Fprint(out, "usage: trace start <file> | trace stop | trace export <file>")
		return
	}
	switch args[0] {
	case "start":
		if len(args) < 2 {
			fmt.Fprint(out, "usage: trace start <file>")
			return
		}
		if err := stm.EnableTrace(args[1]); err != nil {
			fmt.Fprintf(out, "error: %v", err)
			return
		}
		currentTraceFile = args[1]
		fmt.Fprintf(out, "tracing to %s", args[1])
	case "stop":
		stm.DisableTrace()
		fmt.Fprint(out, "tracing stopped")
	case "export":
		if len(args) < 2 || currentTraceFile == "" {
			fmt.Fprint(out, "usage: trace start <file> first, then trace export <outfile>")
			return
		}
		if err := exportTrace(currentTraceFile, args[1]); err != nil {
			fmt.Fprintf(out, "error: %v", err)
			return
		}
		fmt.Fprintf(out, "exported %s -> %s", currentTraceFile, args[1])
	default:
		fmt.Fprintf(out, "unknown trace subcommand %q", args[0])
	}
}

// exportTrace decodes an lz4-compressed trace file (stm.TraceEvent JSON
// lines) and re-packs it as a standalone xz archive — a more portable
// format for sharing a trace outside a process that still has the lz4
// frame's dictionary context warm, and exercises the other compression
// library the retrieved example pack carries alongside lz4.
func exportTrace(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	defer xw.Close()

	lr := lz4.NewReader(in)
	scanner := bufio.NewScanner(lr)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	enc := json.NewEncoder(xw)
	for scanner.Scan() {
		var ev stm.TraceEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("decoding trace event: %w", err)
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("re-encoding trace event: %w", err)
		}
	}
	return scanner.Err()
}
