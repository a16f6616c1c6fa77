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

import "fmt"

// abortSignal is the recoverable error kind (spec.md §7.1). It is raised by
// panic from Abort and caught only by the Atomic driver loop at the depth
// that owns it; it must never escape to application code.
type abortSignal struct {
	tx     *Tx
	depth  int
	reason RestartReason
}

// userAbortSignal carries a body-supplied error out of Atomic without
// triggering a retry — the distinction spec.md §7.1 draws between a
// contention-driven abort (always retried) and a transaction that gives up
// on its own terms (the error is simply returned to the caller).
type userAbortSignal struct {
	tx    *Tx
	depth int
	err   error
}

// FatalError is the unrecoverable error kind (spec.md §7.2): an integrity
// violation such as a checkpoint size mismatch or (in debug builds) an
// overlapping logged range. It is deliberately never recovered by Atomic —
// the same "must terminate the process" shape storage/transaction.go uses
// for a failed ACID commit it cannot explain (`panic("COMMIT failed: "...)`).
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string { return "stm: fatal: " + e.Msg }

// Fatal raises an integrity violation. Never call this for a condition an
// application can legitimately trigger by racing transactions — only for
// states that indicate a bug in the runtime itself.
func Fatal(format string, args ...any) {
	panic(&FatalError{Msg: fmt.Sprintf(format, args...)})
}
