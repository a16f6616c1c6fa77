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
	"sync"
	"sync/atomic"
	"unsafe"
)

// Dispatch is the capability set spec.md §9 asks for: a polymorphic
// algorithm object implementing {begin, read, write, commit-ro, commit-rw,
// rollback, irrevoc, switch-in}. It replaces the source's function-pointer
// table with per-thread indirection.
//
// Read and Write collapse the source's separate *_ro/*_rw barrier
// functions into one call per algorithm: each implementation privately
// branches on whether tx's write set is non-empty, since that branch's
// logic ("first consult the write set for RAW, otherwise fall through to
// the read-only path") is identical across algorithms and spec.md itself
// describes it that way in prose (§4.2 "Read (RW)").
type Dispatch interface {
	Name() string
	// Exclusive reports whether Begin must hold the serial lock's writer
	// side (serial / serial-irrevocable) rather than its reader side.
	Exclusive() bool

	Begin(tx *Tx)
	Read(tx *Tx, addr unsafe.Pointer, size uintptr) word
	Write(tx *Tx, addr unsafe.Pointer, val, mask word, size uintptr)
	CommitRO(tx *Tx) error
	CommitRW(tx *Tx) error
	Rollback(tx *Tx)
	Irrevoc(tx *Tx) bool
	SwitchIn(tx *Tx)
}

var (
	registryMu       sync.Mutex
	dispatchRegistry = map[string]Dispatch{}
)

func registerDispatch(d Dispatch) {
	registryMu.Lock()
	defer registryMu.Unlock()
	dispatchRegistry[d.Name()] = d
}

func dispatchByName(name string) Dispatch {
	registryMu.Lock()
	defer registryMu.Unlock()
	return dispatchRegistry[name]
}

// dispatchBox lets atomic.Pointer hold a boxed interface value: atomic.Value
// requires every Store to use the same concrete type, which an interface
// swapped between *orecELA/*byteEAR/*serialDispatch would violate.
type dispatchBox struct{ d Dispatch }

var activeDispatch atomic.Pointer[dispatchBox]

var initActiveOnce sync.Once

func loadActive() Dispatch {
	initActiveOnce.Do(func() {
		d := dispatchByName(Config.InitialDispatch)
		if d == nil {
			d = dispatchByName("orec-ela")
		}
		activeDispatch.Store(&dispatchBox{d})
	})
	return activeDispatch.Load().d
}

// installDispatch publishes d as the process-wide active algorithm. Per
// spec.md §7, this is only ever called while the caller holds the serial
// lock's writer side (serial mode), which is why a failed switch "is not
// possible by construction".
func installDispatch(d Dispatch) {
	activeDispatch.Store(&dispatchBox{d})
	d.SwitchIn(nil)
}
