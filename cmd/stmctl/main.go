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
	"bytes"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"
)

const newprompt = "\033[32mstm>\033[0m "
const resultprompt = "\033[31m=\033[0m "

func main() {
	fmt.Print(`gostm Copyright (C) 2026
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".stmctl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()
	onexit.Register(func() { l.Close() })

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r, string(debug.Stack()))
				}
			}()
			var out bytes.Buffer
			runCommand(&out, strings.Fields(line))
			fmt.Print(resultprompt)
			fmt.Println(out.String())
		}()
	}
}

func runCommand(out *bytes.Buffer, args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "counter":
		runCounterScenario(out, args[1:])
	case "matrix":
		runMatrixScenario(out, args[1:])
	case "privatize":
		runPrivatizeScenario(out, args[1:])
	case "nested":
		runNestedScenario(out, args[1:])
	case "alloc":
		runAllocScenario(out, args[1:])
	case "trace":
		runTraceCommand(out, args[1:])
	case "config":
		runConfigCommand(out, args[1:])
	case "help":
		fmt.Fprint(out, `commands:
  counter N K     N threads each incrementing a shared counter K times
  matrix R W      R read-only + W read-write threads over a shared matrix
  privatize       demonstrates a privatizing commit + quiescence wait
  nested          demonstrates closed-nesting abort semantics
  alloc           demonstrates TMMalloc/TMFree rollback
  trace start <f> | trace stop | trace export <f>
  config show | config watch <f>`)
	default:
		fmt.Fprintf(out, "unknown command %q, try 'help'", args[0])
	}
}
