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
	"time"

	"github.com/launix-de/NonLockingReadMap"
)

// threadEntry is the registry's element type; it satisfies
// NonLockingReadMap.KeyGetter[int] the same way memcp's shard/partition
// registries key their NonLockingReadMap entries by an integer id.
type threadEntry struct {
	id int
	tx *Tx
}

func (t threadEntry) GetKey() int        { return t.id }
func (t threadEntry) ComputeSize() uint  { return 32 }

// registry is the process-wide live-thread table the quiescence protocol
// (spec.md §4.4) scans to find every other transaction's start time before
// a privatizing commit is allowed to run its post-commit action.
var registry = NonLockingReadMap.New[threadEntry, int]()

var nextThreadID atomic.Int32

// RegisterThread allocates a fresh *Tx and publishes it in the live-thread
// registry, returning it for the caller to bind via SpawnThread/WithTx.
func RegisterThread() *Tx {
	tx := newTx()
	id := int(nextThreadID.Add(1))
	tx.id = id
	registry.Set(&threadEntry{id: id, tx: tx})
	return tx
}

// UnregisterThread removes tx from the live-thread registry. Callers that
// spawn short-lived worker goroutines should defer this immediately after
// RegisterThread.
func UnregisterThread(tx *Tx) {
	registry.Remove(tx.id)
}

func forEachLiveThread(fn func(*Tx)) {
	for _, e := range registry.GetAll() {
		fn(e.tx)
	}
}

// quiesce blocks the calling goroutine until every other registered
// thread's transaction satisfies ready (spec.md §4.4's definition of
// "quiescent": each thread's observed start time is either TOP — meaning
// it isn't transactional right now — or at least as new as waitVersion,
// meaning it started after the privatizing write and will see it when it
// validates). This is how a privatizing commit ensures no concurrently
// running transaction can still be reading through a stale pointer into
// memory the committer is about to reclaim.
func quiesce(self *Tx, waitVersion uint64) {
	backoff := time.Microsecond
	for {
		allReady := true
		forEachLiveThread(func(other *Tx) {
			if other == self || !allReady {
				return
			}
			st := other.startTime.Load()
			if st == TOP || st >= waitVersion {
				return
			}
			allReady = false
		})
		if allReady {
			return
		}
		time.Sleep(backoff)
		if backoff < 2*time.Millisecond {
			backoff *= 2
		}
	}
}
