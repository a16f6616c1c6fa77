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
	"sync/atomic"
	"unsafe"

	"github.com/launix-de/NonLockingReadMap"
)

// byteLock is one entry of the eager-acquire algorithm's lock table
// (spec.md §4.3): readers mark themselves in a bitmap, writers hold an
// exclusive owner pointer. A conflicting writer always wins against
// existing readers — "requestor-wins" — by directly flipping their
// liveness to aborted rather than waiting. readers is a
// NonLockingReadMap.NonBlockingBitMap rather than a single machine word
// so the reader set isn't capped at 64 concurrently registered threads;
// it grows on write the same way quiesce.go's thread registry does.
type byteLock struct {
	readers NonLockingReadMap.NonBlockingBitMap
	writer  atomic.Pointer[Tx]
}

// readerSlotCounter hands out a stable slot id per registered thread so
// readers and writers can index the bitmap directly instead of through a
// map keyed by *Tx.
var readerSlotCounter atomic.Uint32

// assignReaderSlot never hands out slot 0: tx.cm.slot uses 0 as its own
// "not yet assigned" sentinel (see byteEAR.Begin), so a real slot must
// start at 1.
func assignReaderSlot(tx *Tx) uint32 {
	return readerSlotCounter.Add(1)
}

func (b *byteLock) markReader(slot uint32) {
	b.readers.Set(slot, true)
}

func (b *byteLock) clearReader(slot uint32) {
	b.readers.Set(slot, false)
}

func (b *byteLock) isReader(slot uint32) bool {
	return b.readers.Get(slot)
}

func (b *byteLock) hasReaders() bool { return b.readers.Count() > 0 }

func (b *byteLock) releaseHeld(tx *Tx) {
	b.writer.CompareAndSwap(tx, nil)
}

// byteLockTable is the fixed-size mapping spec.md §3 describes literally:
// "orec = table[hash(addr)] where the table size is a prime chosen once
// at init", applied here to byte-locks instead of orecs. Every address
// hashes into one of byteLockTableSize pre-allocated slots; distinct
// addresses that land on the same slot alias the same byte-lock, which
// can only cost a spurious conflict, never a correctness bug. A map
// keyed by exact address would instead grow without bound as new
// addresses are touched, including ones already tm_free'd.
type byteLockTable struct {
	slots [byteLockTableSize]byteLock
}

const byteLockTableSize = 1048573

func (t *byteLockTable) hash(addr unsafe.Pointer) uintptr {
	a := uintptr(addr)
	a ^= a >> 13
	return a % byteLockTableSize
}

func (t *byteLockTable) get(addr unsafe.Pointer) *byteLock {
	return &t.slots[t.hash(addr)]
}

var byteLocks = &byteLockTable{}

// byteEAR is the eager-acquire, requestor-wins dispatch (spec.md §4.3):
// writes take the byte-lock immediately, record the previous bytes in
// tx.undo, and write in place; a conflicting reader or writer is aborted
// the moment the conflict is discovered rather than at commit.
type byteEAR struct{}

func init() { registerDispatch(byteEAR{}) }

func (byteEAR) Name() string    { return "byte-ear" }
func (byteEAR) Exclusive() bool { return false }

func (byteEAR) Begin(tx *Tx) {
	tx.startTime.Store(globalTimestamp.Load())
	if tx.cm.slot == 0 {
		tx.cm.slot = assignReaderSlot(tx)
	}
}

// Read implements ByEAR's read_ro/read_rw (requestor-wins, spec.md §4.3):
// a conflicting owner is inspected, not avoided — an ACTIVE owner is
// aborted in our favor, a COMMITTED owner (already writing back) forces
// us to abort instead since its write is no longer cancellable, and an
// ABORTED owner is harmless and we simply read through it.
func (byteEAR) Read(tx *Tx, addr unsafe.Pointer, size uintptr) word {
	if tx.writes.Len() > 0 {
		if e, ok := tx.writes.Lookup(addr); ok {
			if e.mask == fullMask(size) {
				return e.val
			}
			return mergeWithMemory(addr, e.val, e.mask, size)
		}
	}

	b := byteLocks.get(addr)

	if !b.isReader(tx.cm.slot) {
		tx.cm.readLocks = append(tx.cm.readLocks, readLockRef{b, tx.cm.slot})
		b.markReader(tx.cm.slot)
	}

	if owner := b.writer.Load(); owner != nil && owner != tx {
		switch Liveness(owner.liveness.Load()) {
		case LivenessCommitted:
			Abort(tx, RestartLockedRead)
		case LivenessActive:
			if !owner.liveness.CompareAndSwap(uint32(LivenessActive), uint32(LivenessAborted)) {
				Abort(tx, RestartLockedRead)
			}
		case LivenessAborted:
			// owner is already unwinding; safe to read straight through.
		}
	}

	val := loadRaw(addr, size)

	if tx.liveness.Load() == uint32(LivenessAborted) {
		Abort(tx, RestartLockedRead)
	}
	tx.reads.append(nil, 0)
	return val
}

type readLockRef struct {
	b    *byteLock
	slot uint32
}

// Write implements ByEAR's write_ro/write_rw (requestor-wins, spec.md
// §4.3): if we already own the byte-lock, write straight through;
// otherwise loop until the lock is ours, aborting whatever owner is
// sitting on it on every iteration rather than waiting for it to let go.
func (byteEAR) Write(tx *Tx, addr unsafe.Pointer, val, mask word, size uintptr) {
	b := byteLocks.get(addr)

	if b.writer.Load() != tx {
		for {
			if owner := b.writer.Load(); owner != nil {
				owner.liveness.CompareAndSwap(uint32(LivenessActive), uint32(LivenessAborted))
			} else if b.writer.CompareAndSwap(nil, tx) {
				break
			}
			if tx.liveness.Load() == uint32(LivenessAborted) {
				Abort(tx, RestartLockedWrite)
			}
		}

		tx.heldLocks = append(tx.heldLocks, b)
		b.clearReader(tx.cm.slot)
		if b.hasReaders() {
			remoteAbortReaders(tx, b)
		}
	}

	old := loadRaw(addr, size)
	tx.undo.append(addr, old, mask, size)
	writeMasked(addr, val, mask, size)
	tx.writes.Put(addr, size, val, mask)
}

// remoteAbortReaders is the "requestor-wins" half of EAR: instead of
// waiting for every current reader of b to notice the new writer on their
// own, the writer flips their liveness flag directly (spec.md §4.3's
// "remote abort"), so they discover it the next time they touch the
// global registry or their own liveness field. A reader that has already
// committed is left alone — only an ACTIVE reader can still be aborted.
func remoteAbortReaders(tx *Tx, b *byteLock) {
	forEachLiveThread(func(other *Tx) {
		if other == tx || !b.isReader(other.cm.slot) {
			return
		}
		other.liveness.CompareAndSwap(uint32(LivenessActive), uint32(LivenessAborted))
	})
}

func (byteEAR) CommitRO(tx *Tx) error {
	for _, rl := range tx.cm.readLocks {
		rl.b.clearReader(rl.slot)
	}
	tx.cm.readLocks = tx.cm.readLocks[:0]
	return nil
}

// CommitRW needs no separate quiescence phase (contrast orecELA.CommitRW):
// EAR already forced out every conflicting reader eagerly, at Write time via
// remoteAbortReaders, rather than deferring conflict discovery to commit. By
// the time a write-holding lock reaches here no other thread can still hold
// a reader bit on it without having already been flipped to ABORTED, so
// privatization safety falls out of the eager-acquire discipline itself.
func (byteEAR) CommitRW(tx *Tx) error {
	if !tx.liveness.CompareAndSwap(uint32(LivenessActive), uint32(LivenessCommitted)) {
		Abort(tx, RestartLockedWrite)
	}
	for _, rl := range tx.cm.readLocks {
		rl.b.clearReader(rl.slot)
	}
	tx.cm.readLocks = tx.cm.readLocks[:0]
	for _, h := range tx.heldLocks {
		h.releaseHeld(tx)
	}
	tx.heldLocks = tx.heldLocks[:0]
	nextTimestamp()
	return nil
}

func (byteEAR) Rollback(tx *Tx) {
	tx.undo.replayFrom(0)
	for _, rl := range tx.cm.readLocks {
		rl.b.clearReader(rl.slot)
	}
	tx.cm.readLocks = tx.cm.readLocks[:0]
	for _, h := range tx.heldLocks {
		h.releaseHeld(tx)
	}
	tx.heldLocks = tx.heldLocks[:0]
	tx.liveness.Store(uint32(LivenessActive))
}

func (byteEAR) Irrevoc(tx *Tx) bool { return false }

func (byteEAR) SwitchIn(tx *Tx) {}

// contentionState holds the per-Tx bookkeeping that's specific to whichever
// dispatch is currently active, kept in Tx itself (rather than boxed behind
// an interface) because both orec-ELA and byte-EAR are cheap enough to
// carry unconditionally and the field only grows by a slot id and a slice
// header.
type contentionState struct {
	slot      uint32
	readLocks []readLockRef
	backoff   int
}
