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

func TestAtomicCommitsSimpleWrite(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var x int64
	err := Atomic(tx, 0, func(tx *Tx) error {
		Write(tx, &x, 42)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x != 42 {
		t.Fatalf("expected x == 42, got %d", x)
	}
	if tx.nesting != 0 {
		t.Fatalf("expected nesting to return to 0, got %d", tx.nesting)
	}
	if tx.startTime.Load() != TOP {
		t.Fatalf("expected startTime TOP after commit, got %d", tx.startTime.Load())
	}
}

func TestAtomicUserAbortReturnsErrorWithoutRetrying(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var x int64
	x = 7
	calls := 0
	err := Atomic(tx, 0, func(tx *Tx) error {
		calls++
		Write(tx, &x, 99)
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected body to run exactly once (no retry on user abort), got %d", calls)
	}
	if x != 7 {
		t.Fatalf("expected write to be rolled back, x = %d", x)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestNestedAbortOnlyUndoesInnerRegion(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var a int64
	err := Atomic(tx, 0, func(tx *Tx) error {
		Write(tx, &a, 1)
		innerErr := Atomic(tx, 0, func(tx *Tx) error {
			Write(tx, &a, 2)
			return errBoom
		})
		if innerErr != errBoom {
			t.Fatalf("expected inner abort to return errBoom, got %v", innerErr)
		}
		got := Read(tx, &a)
		if got != 1 {
			t.Fatalf("expected outer to still observe a == 1 after inner abort, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected outer error: %v", err)
	}
	if a != 1 {
		t.Fatalf("expected final a == 1, got %d", a)
	}
}

func TestNestedCommitMergesIntoOuter(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var a, b int64
	Atomic(tx, 0, func(tx *Tx) error {
		Write(tx, &a, 1)
		Atomic(tx, 0, func(tx *Tx) error {
			Write(tx, &b, 2)
			return nil
		})
		if tx.nesting != 1 {
			t.Fatalf("expected nesting back to 1 after inner commit, got %d", tx.nesting)
		}
		return nil
	})
	if a != 1 || b != 2 {
		t.Fatalf("expected both writes visible, a=%d b=%d", a, b)
	}
}

func TestPropertiesDoesGoIrrevocableSelectsSerialIrrevocable(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var ran bool
	Atomic(tx, PrDoesGoIrrevocable, func(tx *Tx) error {
		ran = true
		if tx.dispatch.Name() != "serial-irrevocable" {
			t.Fatalf("expected serial-irrevocable dispatch, got %s", tx.dispatch.Name())
		}
		if !tx.IsIrrevocable() {
			t.Fatal("expected tx.IsIrrevocable() to be true")
		}
		return nil
	})
	if !ran {
		t.Fatal("body did not run")
	}
	// restore default dispatch for any later test in this package.
	installDispatch(dispatchByName("orec-ela"))
}
