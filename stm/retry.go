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

// selectDispatch is the adaptivity policy spec.md §7 asks for: a
// transaction that keeps failing validation under the currently active
// algorithm escalates to serial mode, which can never abort for a
// contention reason because it holds exclusive access. A transaction whose
// properties already declare it will call an irreversible action
// (PrDoesGoIrrevocable) skips straight to serial-irrevocable instead of
// paying for a doomed concurrent attempt first.
//
// The tiers mirror spec.md §4.6's observable properties directly:
// accumulating RestartSerialIrrevocable (set the moment an earlier tier
// decides irrevocable mode is unavoidable) or reaching
// MaxRetriesBeforeSerial pins the transaction to serial-irrevocable,
// giving the bounded-aborts progress guarantee spec.md §8 requires;
// reaching ValidateFailureThreshold on the validate-*, locked-read and
// locked-write reasons together, while still under that bound, tries the
// eager byte-lock algorithm
// first, since a transaction thrashing on lazy-acquire validation
// failures may simply fare better under eager acquisition before ever
// paying serial mode's full cost.
func selectDispatch(tx *Tx, props Properties) Dispatch {
	if props.Has(PrDoesGoIrrevocable) {
		return escalateToSerial(true)
	}

	if tx.restarts.Get(RestartSerialIrrevocable) > 0 {
		return escalateToSerial(true)
	}

	if tx.restarts.Total() >= Config.MaxRetriesBeforeSerial {
		tx.restarts.Increment(RestartSerialIrrevocable)
		return escalateToSerial(true)
	}

	if tx.restarts.Sum(RestartValidateRead, RestartValidateWrite, RestartValidateCommit,
		RestartLockedRead, RestartLockedWrite) >= Config.ValidateFailureThreshold {
		if eager := dispatchByName("byte-ear"); eager != nil {
			return eager
		}
	}

	return loadActive()
}

// escalateToSerial installs the serial (or serial-irrevocable) dispatch as
// the process-wide active algorithm. The caller of selectDispatch has not
// yet taken the serial lock, so this briefly takes its writer side itself
// to perform the switch under the "stop the world" rule spec.md §7
// requires, then releases it — Begin will immediately re-acquire whichever
// side the newly active dispatch calls for.
func escalateToSerial(irrevocable bool) Dispatch {
	name := "serial"
	if irrevocable {
		name = "serial-irrevocable"
	}
	d := dispatchByName(name)
	serialLock.Lock()
	installDispatch(d)
	serialLock.Unlock()
	return d
}
