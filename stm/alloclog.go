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
	"unsafe"

	"github.com/google/btree"
)

// allocEntry is one entry of the allocation log: address -> (deallocator,
// allocated?), per spec.md §3's data model.
type allocEntry struct {
	addr      uintptr
	free      func(unsafe.Pointer)
	allocated bool
}

func (e *allocEntry) Less(than btree.Item) bool {
	return e.addr < than.(*allocEntry).addr
}

// allocLog keeps both insertion order (spec.md's "ordered mapping", used
// for commit/abort replay) and an address-ordered btree.BTree (grounded on
// memcp's commitACID sorting shards by UUID before locking) so that a
// caller wanting deterministic, deadlock-free free-ordering across many
// addresses can iterate by address instead of insertion order.
type allocLog struct {
	order   []*allocEntry
	byAddr  *btree.BTree
	indexOf map[uintptr]int
}

func newAllocLog() *allocLog {
	return &allocLog{byAddr: btree.New(32), indexOf: make(map[uintptr]int)}
}

func (a *allocLog) append(addr unsafe.Pointer, free func(unsafe.Pointer), allocated bool) {
	e := &allocEntry{addr: uintptr(addr), free: free, allocated: allocated}
	a.indexOf[e.addr] = len(a.order)
	a.order = append(a.order, e)
	a.byAddr.ReplaceOrInsert(e)
}

func (a *allocLog) len() int { return len(a.order) }

func (a *allocLog) truncate(n int) {
	for _, e := range a.order[n:] {
		a.byAddr.Delete(e)
		delete(a.indexOf, e.addr)
	}
	a.order = a.order[:n]
}

func (a *allocLog) reset() {
	a.order = a.order[:0]
	a.byAddr = btree.New(32)
	a.indexOf = make(map[uintptr]int)
}

// ascendByAddress iterates the log in address order, lowest first — the
// order in which a deadlock-free heap would want to free overlapping
// arenas.
func (a *allocLog) ascendByAddress(fn func(*allocEntry) bool) {
	a.byAddr.Ascend(func(i btree.Item) bool {
		return fn(i.(*allocEntry))
	})
}

// commit discards deallocators for entries that were allocated this
// transaction (the memory stays live) and invokes the deallocator for
// entries that were freed this transaction (spec.md §4.1).
func (a *allocLog) commit() {
	for _, e := range a.order {
		if !e.allocated {
			e.free(unsafe.Pointer(e.addr))
		}
	}
}

// abort is the mirror image: invoke the deallocator for everything
// allocated this transaction, discard pending frees.
func (a *allocLog) abort() {
	for _, e := range a.order {
		if e.allocated {
			e.free(unsafe.Pointer(e.addr))
		}
	}
}
