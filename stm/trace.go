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
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dc0d/onexit"
	"github.com/pierrec/lz4/v4"
)

func init() {
	onexit.Register(func() { DisableTrace() })
	if Config.TracePath != "" {
		_ = EnableTrace(Config.TracePath)
	}
}

// TraceEvent is one line of the optional diagnostic trace Config.TracePath
// enables — every outermost Begin/Commit/Abort on every thread (nested
// levels are not traced), timestamped against
// the wall clock rather than the internal global timestamp so traces from
// different runs stay comparable.
type TraceEvent struct {
	Time     time.Time     `json:"time"`
	ThreadID int           `json:"thread"`
	Kind     string        `json:"kind"`
	Dispatch string        `json:"dispatch,omitempty"`
	Reason   RestartReason `json:"reason,omitempty"`
	Nesting  int           `json:"nesting"`
}

// tracer streams newline-delimited JSON trace events through an lz4 writer,
// the same compressed-append-log shape storage/persistence.go uses for its
// write-ahead log, so `stmctl trace export` can decompress it back with the
// standard lz4 frame format instead of a bespoke one.
type tracer struct {
	mu  sync.Mutex
	f   *os.File
	lz  *lz4.Writer
	enc *json.Encoder
}

var activeTracer *tracer
var tracerMu sync.Mutex

// EnableTrace opens path (truncating it) and starts recording every future
// outermost Begin/Commit/Abort to it. Passing an empty path (the Config.TracePath
// default) disables tracing.
func EnableTrace(path string) error {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	if activeTracer != nil {
		activeTracer.close()
		activeTracer = nil
	}
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stm: opening trace file: %w", err)
	}
	lw := lz4.NewWriter(f)
	activeTracer = &tracer{f: f, lz: lw, enc: json.NewEncoder(lw)}
	return nil
}

// DisableTrace flushes and closes any currently open trace file.
func DisableTrace() {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	if activeTracer != nil {
		activeTracer.close()
		activeTracer = nil
	}
}

func (t *tracer) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lz.Close()
	t.f.Close()
}

func traceEvent(tx *Tx, kind string, reason RestartReason) {
	tracerMu.Lock()
	t := activeTracer
	tracerMu.Unlock()
	if t == nil {
		return
	}
	dispatchName := ""
	if tx.dispatch != nil {
		dispatchName = tx.dispatch.Name()
	}
	ev := TraceEvent{
		Time:     time.Now(),
		ThreadID: tx.id,
		Kind:     kind,
		Dispatch: dispatchName,
		Reason:   reason,
		Nesting:  tx.nesting,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.enc.Encode(ev)
}
