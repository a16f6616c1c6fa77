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
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/launix-de/gostm/stm"
)

func runConfigCommand(out *bytes.Buffer, args []string) {
	if len(args) == 0 {
		fmt.Fprint(out, "usage: config show | config watch <file>")
		return
	}
	switch args[0] {
	case "show":
		b, _ := json.MarshalIndent(stm.Config, "", "  ")
		out.Write(b)
	case "watch":
		if len(args) < 2 {
			fmt.Fprint(out, "usage: config watch <file>")
			return
		}
		if err := watchConfigFile(args[1]); err != nil {
			fmt.Fprintf(out, "error: %v", err)
			return
		}
		fmt.Fprintf(out, "watching %s for live config reloads (SpinCount, NumThreads)", args[1])
	default:
		fmt.Fprintf(out, "unknown config subcommand %q", args[0])
	}
}

// watchConfigFile starts a background fsnotify watcher on path: every time
// the file is rewritten, its JSON contents are merged into stm.Config —
// letting an operator tune SpinCount or NumThreads without restarting the
// process.
func watchConfigFile(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloadConfigFile(path)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func reloadConfigFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var patch struct {
		NumThreads *int  `json:"NumThreads"`
		SpinCount  *int  `json:"SpinCount"`
	}
	if err := json.Unmarshal(data, &patch); err != nil {
		return
	}
	if patch.NumThreads != nil {
		stm.Config.NumThreads = *patch.NumThreads
	}
	if patch.SpinCount != nil {
		stm.Config.SpinCount = *patch.SpinCount
	}
}
