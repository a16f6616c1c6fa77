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
	"testing"
	"unsafe"
)

func TestReadWriteRoundTrip(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var x int32
	Atomic(tx, 0, func(tx *Tx) error {
		Write(tx, &x, 1234)
		got := Read(tx, &x)
		if got != 1234 {
			t.Fatalf("read-your-own-write failed: got %d", got)
		}
		return nil
	})
	if x != 1234 {
		t.Fatalf("expected committed value 1234, got %d", x)
	}
}

func TestWriteMaskedOnlyTouchesSelectedBytes(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var x uint32 = 0xAABBCCDD
	Atomic(tx, 0, func(tx *Tx) error {
		WriteMasked(tx, &x, uint32(0x11), uint32(0xff))
		return nil
	})
	if x != 0xAABBCC11 {
		t.Fatalf("expected only low byte changed, got %#x", x)
	}
}

func TestTMMallocRollsBackOnAbort(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var ptr unsafe.Pointer
	err := Atomic(tx, 0, func(tx *Tx) error {
		ptr = TMMalloc(tx, 16)
		if ptr == nil {
			t.Fatal("TMMalloc returned nil")
		}
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if len(tx.pins) != 0 {
		t.Fatalf("expected pins cleared after abort, got %d", len(tx.pins))
	}
}

func TestTMMallocSurvivesCommit(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	var ptr *int64
	err := Atomic(tx, 0, func(tx *Tx) error {
		raw := TMMalloc(tx, 8)
		ptr = (*int64)(raw)
		Write(tx, ptr, 77)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *ptr != 77 {
		t.Fatalf("expected committed allocation to hold 77, got %d", *ptr)
	}
}

func TestRegisterActionRunsOnceOnCommit(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	ran := 0
	Atomic(tx, 0, func(tx *Tx) error {
		RegisterAction(tx, true, func(any) { ran++ }, nil)
		return nil
	})
	if ran != 1 {
		t.Fatalf("expected on-commit action to run exactly once, got %d", ran)
	}
}

func TestRegisterActionRunsOnAbortNotCommit(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	committed, aborted := 0, 0
	Atomic(tx, 0, func(tx *Tx) error {
		RegisterAction(tx, true, func(any) { committed++ }, nil)
		RegisterAction(tx, false, func(any) { aborted++ }, nil)
		return errBoom
	})
	if committed != 0 {
		t.Fatalf("expected on-commit action to be skipped, got %d runs", committed)
	}
	if aborted != 1 {
		t.Fatalf("expected on-abort action to run exactly once, got %d", aborted)
	}
}
