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

import "unsafe"

// serialDispatch is the fallback algorithm spec.md §5 asks every
// implementation to keep available: once installed, the transaction holds
// the serial lock's writer side for its whole lifetime, so there is no
// concurrent reader or writer to conflict with and every barrier degrades
// to a direct memory access. The non-irrevocable variant still records an
// undo log so a failed body can still roll back cleanly; the irrevocable
// variant keeps no undo log and treats a rollback as fatal. It is entered
// at Begin (PrDoesGoIrrevocable, or the retry policy's escalation) or from
// inside a body through GoIrrevocable.
type serialDispatch struct {
	irrevocable bool
}

func init() {
	registerDispatch(serialDispatch{irrevocable: false})
	registerDispatch(serialDispatch{irrevocable: true})
}

func (s serialDispatch) Name() string {
	if s.irrevocable {
		return "serial-irrevocable"
	}
	return "serial"
}

func (serialDispatch) Exclusive() bool { return true }

func (s serialDispatch) Begin(tx *Tx) {
	tx.startTime.Store(globalTimestamp.Load())
	if s.irrevocable {
		tx.state |= stateIrrevocable
	}
}

func (serialDispatch) Read(tx *Tx, addr unsafe.Pointer, size uintptr) word {
	return loadRaw(addr, size)
}

func (s serialDispatch) Write(tx *Tx, addr unsafe.Pointer, val, mask word, size uintptr) {
	if !s.irrevocable {
		old := loadRaw(addr, size)
		tx.undo.append(addr, old, mask, size)
	}
	writeMasked(addr, val, mask, size)
}

func (serialDispatch) CommitRO(tx *Tx) error { return nil }

func (serialDispatch) CommitRW(tx *Tx) error {
	nextTimestamp()
	return nil
}

func (s serialDispatch) Rollback(tx *Tx) {
	if s.irrevocable {
		Fatal("attempted to roll back an irrevocable transaction")
	}
	tx.undo.replayFrom(0)
}

// Irrevoc switches the current, already-serial transaction into the
// irrevocable variant so a subsequent Abort can no longer be honored; used
// by GoIrrevocable before the caller performs a side effect it can no
// longer undo.
func (serialDispatch) Irrevoc(tx *Tx) bool {
	tx.state |= stateIrrevocable
	tx.dispatch = dispatchByName("serial-irrevocable")
	return true
}

func (serialDispatch) SwitchIn(tx *Tx) {}
