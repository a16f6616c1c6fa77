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

	"github.com/google/uuid"
)

// Liveness is the shared tri-state remote-abort protocols use (spec.md §3).
type Liveness uint32

const (
	LivenessActive Liveness = iota
	LivenessAborted
	LivenessCommitted
)

// TOP marks a Tx's start-time field as "not currently in a transaction"
// (spec.md §3 invariant). Chosen as the maximum timestamp so that any
// live comparison start_time >= X is trivially true when inactive, the
// same sentinel role the quiescence wait in spec.md §4.4 relies on.
const TOP = ^uint64(0)

// serialLock is THE serial lock (spec.md §3/§5): its reader side is held
// by every normally-running transaction (so a writer can stop the world);
// its writer side is held by serial/serial-irrevocable mode and by a
// dispatch switch.
var serialLock sync.RWMutex

// globalTimestamp is the monotonic global clock orec-ELA samples at begin
// and advances past at commit.
var globalTimestamp atomic.Uint64

func nextTimestamp() uint64 { return globalTimestamp.Add(1) }

// state bitmask flags (spec.md §3's Tx.state field).
const (
	stateSerial      uint32 = 1 << 0
	stateIrrevocable uint32 = 1 << 1
)

// checkpoint is a saved prefix of every log plus the nesting depth it
// belongs to, pushed by a closed-nested Begin and consumed by the matching
// Abort or Commit (spec.md §3 "nesting checkpoints").
type checkpoint struct {
	depth        int
	readSetLen   int
	writeSetLen  int
	undoLogLen   int
	allocLogLen  int
	actionLogLen int
}

// Tx is the per-thread transaction descriptor, spec.md §3's central data
// structure. One Tx is created per registered thread and lives for the
// thread's lifetime; between transactions every log is empty and
// startTime == TOP.
type Tx struct {
	id   int
	uuid uuid.UUID

	nesting  int
	props    Properties
	dispatch Dispatch

	reads   readSet
	writes  *writeSet
	undo    undoLog
	allocs  *allocLog
	actions actionLog
	checkpoints []checkpoint

	// heldLocks are the orecs or byte-locks acquired for writing this
	// transaction; algorithm-specific concrete type lives behind an
	// interface so tx.go stays algorithm-agnostic.
	heldLocks []lockHandle

	// shared fields: read and written across goroutines during
	// quiescence / remote-abort protocols.
	startTime   atomic.Uint64
	lastValTime atomic.Uint64
	liveness    atomic.Uint32

	state uint32

	restarts   RestartCounters
	lastReason RestartReason

	cm contentionState

	// pins keeps TMMalloc'd buffers reachable for the GC regardless of how
	// many unsafe.Pointer-typed addresses into them are currently logged —
	// a live unsafe.Pointer field is itself enough to keep its target's
	// backing array alive.
	pins []unsafe.Pointer
}

// lockHandle abstracts over *orec and *byteLock so tx.go's rollback
// bookkeeping doesn't need to know which algorithm is active.
type lockHandle interface {
	releaseHeld(tx *Tx)
}

func newTx() *Tx {
	tx := &Tx{
		uuid:   uuid.New(),
		writes: newWriteSet(),
		allocs: newAllocLog(),
	}
	tx.startTime.Store(TOP)
	return tx
}

func (tx *Tx) Nesting() int       { return tx.nesting }
func (tx *Tx) ID() int            { return tx.id }
func (tx *Tx) UUID() uuid.UUID    { return tx.uuid }
func (tx *Tx) IsReadOnly() bool   { return tx.writes.Len() == 0 }
func (tx *Tx) IsIrrevocable() bool { return tx.state&stateIrrevocable != 0 }

// Begin starts or, if already nesting, pushes a checkpoint for a closed
// nested transaction (spec.md §4.1).
func Begin(tx *Tx, props Properties) {
	if tx.nesting > 0 {
		tx.checkpoints = append(tx.checkpoints, checkpoint{
			depth:        tx.nesting,
			readSetLen:   tx.reads.len(),
			writeSetLen:  tx.writes.Len(),
			undoLogLen:   tx.undo.len(),
			allocLogLen:  tx.allocs.len(),
			actionLogLen: tx.actions.len(),
		})
		tx.nesting++
		return
	}

	d := selectDispatch(tx, props)
	if d.Exclusive() {
		serialLock.Lock()
	} else {
		serialLock.RLock()
	}
	tx.dispatch = d
	tx.props = props
	tx.nesting = 1
	tx.liveness.Store(uint32(LivenessActive))
	tx.state = 0
	if props.Has(PrDoesGoIrrevocable) {
		tx.state |= stateIrrevocable
	}
	d.Begin(tx)
	traceEvent(tx, "begin", 0)
}

// Commit ends the current nesting level. At nesting 0 it runs the active
// dispatch's commit, releases the serial lock, runs on-commit actions,
// materializes pending deallocations and clears every log (spec.md §4.1).
func Commit(tx *Tx) error {
	tx.nesting--
	if tx.nesting > 0 {
		// closed nesting: merge into the outer transaction by simply
		// dropping the checkpoint — the inner region's effects are
		// already reflected in the shared logs.
		if n := len(tx.checkpoints); n > 0 {
			tx.checkpoints = tx.checkpoints[:n-1]
		}
		return nil
	}

	var err error
	if tx.IsReadOnly() {
		err = tx.dispatch.CommitRO(tx)
	} else {
		err = tx.dispatch.CommitRW(tx)
	}
	if err != nil {
		return err
	}

	if tx.dispatch.Exclusive() {
		serialLock.Unlock()
	} else {
		serialLock.RUnlock()
	}

	tx.actions.runCommit()
	tx.allocs.commit()
	tx.clearLogs()
	tx.lastReason = 0
	tx.restarts.Reset()
	tx.cm.backoff = 0
	tx.startTime.Store(TOP)
	traceEvent(tx, "commit", 0)
	return nil
}

// Abort unwinds the current nesting level. At depth 1 (outermost) it
// undoes everything the dispatch has recorded, releases the serial lock,
// and restores nesting to 0 before panicking with abortSignal so the
// matching Atomic frame restarts it with a (possibly new) dispatch. At a
// deeper nesting level it only replays the log suffix recorded since that
// level's checkpoint — the closed-nesting contract spec.md's glossary
// describes ("returns to the start of the inner region").
func Abort(tx *Tx, reason RestartReason) {
	depth := tx.nesting
	if depth <= 1 {
		abortOutermost(tx, reason, true)
	} else {
		abortNested(tx, reason, true)
	}
	panic(abortSignal{tx: tx, depth: depth, reason: reason})
}

// AbortUser unwinds tx exactly like Abort but is raised when body itself
// gave up (returned a non-nil error) rather than because of contention:
// Atomic returns err to the caller instead of retrying, and the restart
// counters — which drive the contention-escalation policy in retry.go —
// are left untouched.
func AbortUser(tx *Tx, err error) {
	depth := tx.nesting
	if depth <= 1 {
		abortOutermost(tx, 0, false)
	} else {
		abortNested(tx, 0, false)
	}
	panic(userAbortSignal{tx: tx, depth: depth, err: err})
}

func abortOutermost(tx *Tx, reason RestartReason, accountRestart bool) {
	tx.actions.runAbort()
	tx.dispatch.Rollback(tx)
	tx.allocs.abort()

	if tx.dispatch.Exclusive() {
		serialLock.Unlock()
	} else {
		serialLock.RUnlock()
	}

	if accountRestart {
		tx.restarts.Increment(reason)
		tx.lastReason = reason
	}
	traceEvent(tx, "abort", reason)
	tx.clearLogs()
	tx.checkpoints = tx.checkpoints[:0]
	tx.nesting = 0
	tx.startTime.Store(TOP)
}

func abortNested(tx *Tx, reason RestartReason, accountRestart bool) {
	n := len(tx.checkpoints)
	cp := tx.checkpoints[n-1]
	tx.checkpoints = tx.checkpoints[:n-1]

	// Run on-abort actions registered since the checkpoint, LIFO, without
	// touching the outer transaction's earlier actions.
	for i := tx.actions.len() - 1; i >= cp.actionLogLen; i-- {
		act := tx.actions.entries[i]
		if !act.onCommit {
			act.fn(act.arg)
		}
	}
	tx.actions.truncate(cp.actionLogLen)

	// Undo in-place writes made since the checkpoint (orec-ELA has none —
	// its writes are still buffered and simply get truncated away).
	tx.undo.replayFrom(cp.undoLogLen)
	tx.writes.truncate(cp.writeSetLen)
	tx.reads.truncate(cp.readSetLen)
	tx.allocs.truncate(cp.allocLogLen)

	if accountRestart {
		tx.restarts.Increment(reason)
	}
	tx.nesting = cp.depth
}

func (tx *Tx) clearLogs() {
	tx.reads.reset()
	tx.writes.Reset()
	tx.undo.reset()
	tx.actions.reset()
	tx.allocs.reset()
	tx.heldLocks = tx.heldLocks[:0]
	tx.pins = tx.pins[:0]
}

// errRetry is the sentinel returned internally by Atomic's body wrapper to
// signal "caught our own abortSignal, loop again".
var errRetry = &struct{ error }{}

// Atomic is the idiomatic-Go realization of spec.md §9's continuation
// contract: instead of an assembly-saved register file and a longjmp-style
// return, a typed panic (abortSignal) unwinds the Go call stack back to
// exactly the Atomic frame that owns the aborted nesting depth, which then
// restarts body from the top — "resume at a program point whose local and
// register state is identical to the state immediately after begin" is
// satisfied because body's local variables are simply re-executed from
// scratch, and tx's shared state has already been reset to that depth's
// post-begin shape by Abort. This is the redesign spec.md §9 explicitly
// sanctions ("how the snapshot is realized... is an implementation
// choice").
func Atomic(tx *Tx, props Properties, body func(tx *Tx) error) (err error) {
	nested := tx.nesting > 0
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					switch sig := r.(type) {
					case abortSignal:
						if sig.tx != tx || sig.depth != tx.nesting+1 {
							panic(r)
						}
						err = errRetry
					case userAbortSignal:
						if sig.tx != tx || sig.depth != tx.nesting+1 {
							panic(r)
						}
						err = sig.err
					default:
						panic(r)
					}
				}
			}()
			Begin(tx, props)
			if berr := body(tx); berr != nil {
				AbortUser(tx, berr)
			}
			err = Commit(tx)
		}()
		if err != errRetry {
			return err
		}
		if !nested {
			currentCM().OnConflict(tx, tx.lastReason)
		}
		// nested: the checkpoint already rolled tx back to the state
		// right after the inner Begin; loop to re-run the inner body
		// only. outermost: Begin will re-consult the retry policy,
		// possibly switching dispatch, before re-running the whole body.
	}
}
