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

func TestWriteMaskedPartialBytes(t *testing.T) {
	var buf [8]byte
	for i := range buf {
		buf[i] = 0xAA
	}
	var val word
	val[0] = 0x11
	val[1] = 0x22
	var mask word
	mask[0] = 0xff

	writeMasked(unsafe.Pointer(&buf[0]), val, mask, 8)

	if buf[0] != 0x11 {
		t.Fatalf("masked byte not written: got %#x", buf[0])
	}
	for i := 1; i < 8; i++ {
		if buf[i] != 0xAA {
			t.Fatalf("unmasked byte %d clobbered: got %#x", i, buf[i])
		}
	}
}

func TestMergeWithMemoryOverlaysBufferedBytes(t *testing.T) {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(i)
	}
	var val word
	val[2] = 0x99
	var mask word
	mask[2] = 0xff

	merged := mergeWithMemory(unsafe.Pointer(&buf[0]), val, mask, 8)
	for i := 0; i < 8; i++ {
		if i == 2 {
			if merged[i] != 0x99 {
				t.Fatalf("byte 2: want 0x99, got %#x", merged[i])
			}
			continue
		}
		if merged[i] != byte(i) {
			t.Fatalf("byte %d: want %d, got %#x", i, i, merged[i])
		}
	}
}

func TestWriteSetPutMergesMasks(t *testing.T) {
	ws := newWriteSet()
	var buf [8]byte
	addr := unsafe.Pointer(&buf[0])

	var v1, m1 word
	v1[0] = 0x11
	m1[0] = 0xff
	ws.Put(addr, 8, v1, m1)

	var v2, m2 word
	v2[1] = 0x22
	m2[1] = 0xff
	ws.Put(addr, 8, v2, m2)

	if ws.Len() != 1 {
		t.Fatalf("expected a single merged entry for one address, got %d", ws.Len())
	}
	e, ok := ws.Lookup(addr)
	if !ok {
		t.Fatal("expected to find the merged entry")
	}
	if e.val[0] != 0x11 || e.val[1] != 0x22 {
		t.Fatalf("merged value wrong: %v", e.val)
	}
	if e.mask[0] != 0xff || e.mask[1] != 0xff {
		t.Fatalf("merged mask wrong: %v", e.mask)
	}
}

func TestUndoLogReplayRestoresReverseOrder(t *testing.T) {
	var buf [8]byte
	addr := unsafe.Pointer(&buf[0])

	var u undoLog
	var old1 word
	old1[0] = 0x01
	u.append(addr, old1, fullMask(1), 1)
	buf[0] = 0x02 // simulate the write that followed the log entry

	var old2 word
	old2[0] = 0x02
	u.append(addr, old2, fullMask(1), 1)
	buf[0] = 0x03

	u.replayFrom(0)

	if buf[0] != 0x01 {
		t.Fatalf("expected full rollback to 0x01, got %#x", buf[0])
	}
	if u.len() != 0 {
		t.Fatalf("expected undo log truncated to empty, got len %d", u.len())
	}
}

func TestUndoLogReplayFromCheckpoint(t *testing.T) {
	var buf [8]byte
	addr := unsafe.Pointer(&buf[0])

	var u undoLog
	var old1 word
	old1[0] = 0x01
	u.append(addr, old1, fullMask(1), 1)
	buf[0] = 0x02
	checkpoint := u.len()

	var old2 word
	old2[0] = 0x02
	u.append(addr, old2, fullMask(1), 1)
	buf[0] = 0x03

	u.replayFrom(checkpoint)

	if buf[0] != 0x02 {
		t.Fatalf("expected partial rollback to 0x02, got %#x", buf[0])
	}
	if u.len() != checkpoint {
		t.Fatalf("expected undo log truncated to checkpoint length %d, got %d", checkpoint, u.len())
	}
}

func TestActionLogCommitAndAbortOrdering(t *testing.T) {
	var order []int
	var a actionLog
	a.append(func(arg any) { order = append(order, arg.(int)) }, 1, true)
	a.append(func(arg any) { order = append(order, arg.(int)) }, 2, false)
	a.append(func(arg any) { order = append(order, arg.(int)) }, 3, true)

	a.runCommit()
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("expected on-commit actions in insertion order [1 3], got %v", order)
	}

	order = nil
	a.runAbort()
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("expected only the on-abort action to run, got %v", order)
	}
}
