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
)

// orec is one ownership record of the lazy-acquire algorithm (spec.md §4.2):
// a versioned lock word where the top bit marks "locked" and the remaining
// bits hold the version number (while locked, the version it had when it
// was acquired). The owning Tx is recorded separately in owner.
type orec struct {
	state atomic.Uint64
	owner atomic.Pointer[Tx]
}

const orecLockedBit = uint64(1) << 63

func (o *orec) version() uint64 { return o.state.Load() &^ orecLockedBit }
func (o *orec) locked() bool    { return o.state.Load()&orecLockedBit != 0 }

func (o *orec) tryLock(tx *Tx, expect uint64) bool {
	if !o.state.CompareAndSwap(expect, expect|orecLockedBit) {
		return false
	}
	o.owner.Store(tx)
	return true
}

func (o *orec) unlockTo(v uint64) {
	o.owner.Store(nil)
	o.state.Store(v)
}

// orecTable is the fixed-size mapping spec.md §3 describes literally:
// "orec = table[hash(addr)] where the table size is a prime chosen once
// at init". Every address hashes into one of orecTableSize pre-allocated
// slots; distinct addresses that land on the same slot alias the same
// orec, which can only cost a spurious validation failure, never a
// correctness bug. Sizing the table as a map keyed by exact address
// instead would let it grow without bound as new addresses are touched,
// including ones already tm_free'd — a resource leak the fixed table
// avoids by construction.
type orecTable struct {
	slots [orecTableSize]orec
}

// orecTableSize is the largest prime below 2^20, the same "big fixed
// table" sizing RSTM's ownership-record arrays use.
const orecTableSize = 1048573

func (t *orecTable) hash(addr unsafe.Pointer) uintptr {
	a := uintptr(addr) >> 3
	a ^= a >> 16
	return a % orecTableSize
}

func (t *orecTable) get(addr unsafe.Pointer) *orec {
	return &t.slots[t.hash(addr)]
}

var orecs = &orecTable{}

// heldOrec pairs a locked orec with the version it held before locking, so
// rollback and commit can each restore/advance it correctly.
type heldOrec struct {
	o       *orec
	preLock uint64
}

func (h *heldOrec) releaseHeld(tx *Tx) { h.o.unlockTo(h.preLock) }

// orecELA is the lazy-acquire, extensible-timestamp dispatch (spec.md §4.2):
// reads are buffered as (orec, observed-version) pairs and revalidated at
// commit; writes are buffered in tx.writes and only applied, under lock,
// during CommitRW. "Extensible" means a reader that observes the global
// clock has moved is allowed to bump its own validation time and keep going
// instead of aborting immediately, as long as every previously read orec is
// still at its observed version.
type orecELA struct{}

func init() { registerDispatch(orecELA{}) }

func (orecELA) Name() string    { return "orec-ela" }
func (orecELA) Exclusive() bool { return false }

func (orecELA) Begin(tx *Tx) {
	t := globalTimestamp.Load()
	tx.startTime.Store(t)
	tx.lastValTime.Store(t)
}

func (d orecELA) Read(tx *Tx, addr unsafe.Pointer, size uintptr) word {
	if tx.writes.Len() > 0 {
		if e, ok := tx.writes.Lookup(addr); ok {
			if e.mask == fullMask(size) {
				return e.val
			}
			return mergeWithMemory(addr, e.val, e.mask, size)
		}
	}

	o := orecs.get(addr)
	for {
		v1 := o.state.Load()
		if v1&orecLockedBit != 0 {
			Abort(tx, RestartLockedRead)
		}
		val := loadRaw(addr, size)
		v2 := o.state.Load()
		if v1 != v2 {
			continue
		}
		if v1 > tx.lastValTime.Load() {
			if !d.extend(tx) {
				Abort(tx, RestartValidateRead)
			}
		}
		tx.reads.append(o, v1)
		return val
	}
}

func (d orecELA) Write(tx *Tx, addr unsafe.Pointer, val, mask word, size uintptr) {
	tx.writes.Put(addr, size, val, mask)
}

// extend re-validates every orec in the read set against the current
// global timestamp and, if all are unchanged, advances lastValTime to it —
// the "extensible" part of ELA that lets long read-only stretches survive
// concurrent commits elsewhere without aborting.
func (d orecELA) extend(tx *Tx) bool {
	now := globalTimestamp.Load()
	for _, re := range tx.reads.entries {
		if re.o.state.Load() != re.observed {
			return false
		}
	}
	tx.lastValTime.Store(now)
	return true
}

func (orecELA) CommitRO(tx *Tx) error {
	return nil
}

func (d orecELA) CommitRW(tx *Tx) error {
	// acquire phase: lock every written orec, bailing out (and releasing
	// what was already locked) on the first contended one.
	locked := 0
	abort := false
	tx.writes.Each(func(e *writeEntry) {
		if abort {
			return
		}
		o := orecs.get(e.addr)
		if findHeld(tx, o) != nil {
			return
		}
		v := o.state.Load()
		if v&orecLockedBit != 0 {
			abort = true
			return
		}
		if !o.tryLock(tx, v) {
			abort = true
			return
		}
		tx.heldLocks = append(tx.heldLocks, &heldOrec{o: o, preLock: v})
		locked++
	})
	if abort {
		for _, h := range tx.heldLocks {
			h.releaseHeld(tx)
		}
		Abort(tx, RestartLockedWrite)
	}

	// validate the read set against the locked write set's prior versions.
	for _, re := range tx.reads.entries {
		if h := findHeld(tx, re.o); h != nil {
			if re.observed != h.preLock {
				releaseAll(tx)
				Abort(tx, RestartValidateCommit)
			}
			continue
		}
		if re.o.state.Load() != re.observed {
			releaseAll(tx)
			Abort(tx, RestartValidateCommit)
		}
	}

	commitVersion := nextTimestamp()
	tx.writes.Each(func(e *writeEntry) {
		writeMasked(e.addr, e.val, e.mask, e.size)
	})
	for _, h := range tx.heldLocks {
		h.(*heldOrec).o.unlockTo(commitVersion)
	}
	tx.heldLocks = tx.heldLocks[:0]

	// quiescence phase (spec.md §4.4): publish end_time for other threads'
	// quiesce callers to see, then block until every other live thread has
	// either re-sampled start_time past commitVersion or gone inactive, so
	// a subsequent non-transactional reader of a privatized address can
	// never race this writeback. Publishing commitVersion into our own
	// start_time before waiting (rather than leaving it at our pre-commit
	// snapshot) matters for liveness: it lets any other committer's
	// concurrent quiesce, which needs our start_time to reach only their
	// own (necessarily smaller, since timestamps are handed out in a
	// total order) commitVersion, unblock on us without waiting for us to
	// return all the way to an outermost Commit — otherwise two writers
	// committing back-to-back could each wait on the other forever.
	tx.lastValTime.Store(commitVersion)
	tx.startTime.Store(commitVersion)
	quiesce(tx, commitVersion)
	return nil
}

func findHeld(tx *Tx, o *orec) *heldOrec {
	for _, h := range tx.heldLocks {
		if ho, ok := h.(*heldOrec); ok && ho.o == o {
			return ho
		}
	}
	return nil
}

func releaseAll(tx *Tx) {
	for _, h := range tx.heldLocks {
		h.releaseHeld(tx)
	}
	tx.heldLocks = tx.heldLocks[:0]
}

func (orecELA) Rollback(tx *Tx) {
	releaseAll(tx)
}

func (orecELA) Irrevoc(tx *Tx) bool { return false }

func (orecELA) SwitchIn(tx *Tx) {}
