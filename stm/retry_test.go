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

import "testing"

func TestSelectDispatchStaysOnActiveBelowRetryThreshold(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	d := selectDispatch(tx, 0)
	if d.Name() == "serial" || d.Name() == "serial-irrevocable" {
		t.Fatalf("expected non-serial dispatch for a fresh transaction, got %s", d.Name())
	}
}

func TestSelectDispatchEscalatesToSerialIrrevocableAfterRepeatedValidationFailures(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)
	defer installDispatch(dispatchByName("orec-ela"))

	for i := uint64(0); i < Config.MaxRetriesBeforeSerial; i++ {
		tx.restarts.Increment(RestartValidateCommit)
	}

	d := selectDispatch(tx, 0)
	if d.Name() != "serial-irrevocable" {
		t.Fatalf("expected escalation to serial-irrevocable dispatch, got %s", d.Name())
	}
	if loadActive().Name() != "serial-irrevocable" {
		t.Fatalf("expected escalation to install serial-irrevocable as the process-wide active dispatch, got %s", loadActive().Name())
	}
	if got := tx.restarts.Get(RestartSerialIrrevocable); got != 1 {
		t.Fatalf("expected escalation to record one RestartSerialIrrevocable, got %d", got)
	}
}

func TestSelectDispatchTriesEagerAlgorithmBelowSerialThreshold(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)
	defer installDispatch(dispatchByName("orec-ela"))

	for i := uint64(0); i < Config.ValidateFailureThreshold; i++ {
		tx.restarts.Increment(RestartValidateRead)
	}

	d := selectDispatch(tx, 0)
	if d.Name() != "byte-ear" {
		t.Fatalf("expected the eager byte-lock algorithm below the serial threshold, got %s", d.Name())
	}
}

func TestSelectDispatchSkipsStraightToSerialIrrevocable(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)
	defer installDispatch(dispatchByName("orec-ela"))

	d := selectDispatch(tx, PrDoesGoIrrevocable)
	if d.Name() != "serial-irrevocable" {
		t.Fatalf("expected serial-irrevocable for PrDoesGoIrrevocable, got %s", d.Name())
	}
}

func TestAtomicEscalatesToSerialIrrevocableUnderRepeatedContention(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)
	defer installDispatch(dispatchByName("orec-ela"))

	for i := uint64(0); i < Config.MaxRetriesBeforeSerial; i++ {
		tx.restarts.Increment(RestartValidateRead)
	}

	var observed string
	err := Atomic(tx, 0, func(tx *Tx) error {
		observed = tx.dispatch.Name()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observed != "serial-irrevocable" {
		t.Fatalf("expected the escalated transaction to run under serial-irrevocable dispatch, got %s", observed)
	}
}

func TestGlobalRestartCountersSumsAcrossLiveThreads(t *testing.T) {
	txA := RegisterThread()
	defer UnregisterThread(txA)
	txB := RegisterThread()
	defer UnregisterThread(txB)

	txA.restarts.Increment(RestartLockedWrite)
	txA.restarts.Increment(RestartLockedWrite)
	txB.restarts.Increment(RestartLockedWrite)

	counters := GlobalRestartCounters()
	if got := counters[RestartLockedWrite.String()]; got != 3 {
		t.Fatalf("expected 3 total RestartLockedWrite across threads, got %d", got)
	}
}
