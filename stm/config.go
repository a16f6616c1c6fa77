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
package stm

import (
	"os"
	"strconv"
)

// ConfigT mirrors storage.SettingsT's shape: a plain struct of tuning
// knobs, defaulted in code and overridden from the environment once at
// package init. See spec.md §6 for the three knobs it is required to
// recognize.
type ConfigT struct {
	// InitialDispatch names the dispatch selected at the first Begin
	// (STM_CONFIG). One of "orec-ela", "byte-ear", "serial",
	// "serial-irrevocable".
	InitialDispatch string

	// NumThreads holds the thread-slot count read from STM_NUM_THREADS.
	// RegisterThread does not consult it: the registry hands out thread
	// slots without a limit.
	NumThreads int

	// SpinCount is how many busy-wait iterations the default contention
	// manager spins after each of a transaction's first four aborts
	// before it switches to sleeping (STM_SPIN_COUNT). The barriers
	// themselves do not spin on it.
	SpinCount int

	// ValidateFailureThreshold: once a transaction's validate-*,
	// locked-read and locked-write restart counters together reach this,
	// the retry policy tries an eager algorithm instead (spec.md §4.6).
	ValidateFailureThreshold uint64

	// MaxRetriesBeforeSerial bounds how many total restarts a
	// transaction may accumulate before the retry policy forces
	// serial-irrevocable, giving the progress guarantee spec.md §8
	// requires.
	MaxRetriesBeforeSerial uint64

	// DebugLogOverlap enables the optional temp-log overlap validator
	// (spec.md §9 Open Questions #2); off by default, matching "enabled
	// only in some builds" in the source.
	DebugLogOverlap bool

	// TracePath, if non-empty, turns on the lz4-compressed diagnostic
	// event trace (stm/trace.go).
	TracePath string
}

var Config = loadConfig()

func loadConfig() ConfigT {
	c := ConfigT{
		InitialDispatch:          "orec-ela",
		NumThreads:                64,
		SpinCount:                 100,
		ValidateFailureThreshold:  8,
		MaxRetriesBeforeSerial:    16,
		DebugLogOverlap:           false,
		TracePath:                 "",
	}
	if v := os.Getenv("STM_CONFIG"); v != "" {
		c.InitialDispatch = v
	}
	if v := os.Getenv("STM_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.NumThreads = n
		}
	}
	if v := os.Getenv("STM_SPIN_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.SpinCount = n
		}
	}
	if v := os.Getenv("STM_DEBUG_LOG_OVERLAP"); v != "" {
		c.DebugLogOverlap = v == "1" || v == "true"
	}
	if v := os.Getenv("STM_TRACE_PATH"); v != "" {
		c.TracePath = v
	}
	return c
}
