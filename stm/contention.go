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
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// ContentionManager decides how long a transaction waits before retrying
// after an abort (spec.md §7's "contention manager" hook, left pluggable
// the same way the original leaves the algorithm itself pluggable).
type ContentionManager interface {
	Name() string
	OnConflict(tx *Tx, reason RestartReason)
}

var (
	cmMu       sync.Mutex
	cmRegistry = map[string]ContentionManager{}
	activeCM   atomic.Pointer[cmBox]
)

type cmBox struct{ cm ContentionManager }

func registerCM(cm ContentionManager) {
	cmMu.Lock()
	defer cmMu.Unlock()
	cmRegistry[cm.Name()] = cm
}

// SetContentionManager installs cm as the process-wide policy every
// Atomic retry consults. The default is exponentialBackoffCM.
func SetContentionManager(cm ContentionManager) {
	activeCM.Store(&cmBox{cm})
}

func currentCM() ContentionManager {
	b := activeCM.Load()
	if b == nil {
		return exponentialBackoffCM{}
	}
	return b.cm
}

// exponentialBackoffCM is the simplest useful policy: for a transaction's
// first four aborts it spins for Config.SpinCount iterations, after that it
// sleeps with exponential backoff and jitter, capped at 1024µs — the same
// shape memcp's retry loops in
// storage/scan.go use around lock contention.
type exponentialBackoffCM struct{}

func init() { registerCM(exponentialBackoffCM{}) }

func (exponentialBackoffCM) Name() string { return "backoff" }

func (exponentialBackoffCM) OnConflict(tx *Tx, reason RestartReason) {
	n := tx.cm.backoff
	tx.cm.backoff++
	if n < 4 {
		for i := 0; i < Config.SpinCount; i++ {
			// busy-wait: cheaper than sleeping for the first few retries,
			// where the conflicting writer is likely to finish quickly.
		}
		return
	}
	cap := time.Duration(1<<uint(min(n, 10))) * time.Microsecond
	jitter := time.Duration(rand.Int63n(int64(cap) + 1))
	time.Sleep(cap/2 + jitter/2)
}

// PriorityCM is the Open Question #1 decision: instead of pure randomized
// backoff, a transaction's priority is its restart count, and it sleeps
// (32 - priority) microseconds, at least 1µs — an older, more-restarted
// transaction waits less, making eventual progress far more likely under
// heavy contention.
// Grounded on the same "age breaks ties" idea spec.md's retry discussion
// gestures at without mandating a concrete manager.
type PriorityCM struct{}

func init() { registerCM(PriorityCM{}) }

func (PriorityCM) Name() string { return "priority" }

func (PriorityCM) OnConflict(tx *Tx, reason RestartReason) {
	priority := tx.restarts.Total()
	backoff := time.Duration(1) * time.Microsecond
	if priority < 32 {
		backoff = time.Duration(32-priority) * time.Microsecond
	}
	time.Sleep(backoff)
}
