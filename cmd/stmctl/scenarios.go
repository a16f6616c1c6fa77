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
package main

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/docker/go-units"

	"github.com/launix-de/gostm/stm"
)

func atoiDefault(args []string, idx int, def int) int {
	if idx >= len(args) {
		return def
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil {
		return def
	}
	return n
}

// runCounterScenario starts n goroutines, each incrementing a shared
// counter k times inside stm.Atomic, and reports the final counter against
// the expected n*k together with the wall-clock time — the
// throughput/contention demo every STM paper opens with.
func runCounterScenario(out *bytes.Buffer, args []string) {
	n := atoiDefault(args, 0, 8)
	k := atoiDefault(args, 1, 10000)

	var counter int64
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < n; i++ {
		wg.Add(1)
		tx := stm.RegisterThread()
		go func(tx *stm.Tx) {
			defer wg.Done()
			defer stm.UnregisterThread(tx)
			stm.WithTx(tx, func() {
				for j := 0; j < k; j++ {
					stm.Atomic(tx, 0, func(tx *stm.Tx) error {
						v := stm.Read(tx, &counter)
						stm.Write(tx, &counter, v+1)
						return nil
					})
				}
			})
		}(tx)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Fprintf(out, "counter=%d expected=%d elapsed=%s (%s/op)",
		counter, int64(n*k), elapsed, elapsed/time.Duration(n*k))
}

// runMatrixScenario runs r read-only threads scanning a shared matrix
// concurrently with w read-write threads that rotate one row at a time,
// the classic orec-ELA stress shape (many long readers vs. a few short
// writers).
func runMatrixScenario(out *bytes.Buffer, args []string) {
	r := atoiDefault(args, 0, 4)
	w := atoiDefault(args, 1, 2)
	const dim = 16

	var matrix [dim][dim]int64
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < r; i++ {
		wg.Add(1)
		tx := stm.RegisterThread()
		go func(tx *stm.Tx) {
			defer wg.Done()
			defer stm.UnregisterThread(tx)
			for {
				select {
				case <-stop:
					return
				default:
				}
				stm.Atomic(tx, 0, func(tx *stm.Tx) error {
					var sum int64
					for a := 0; a < dim; a++ {
						for b := 0; b < dim; b++ {
							sum += stm.Read(tx, &matrix[a][b])
						}
					}
					return nil
				})
			}
		}(tx)
	}
	for i := 0; i < w; i++ {
		wg.Add(1)
		tx := stm.RegisterThread()
		go func(tx *stm.Tx, row int) {
			defer wg.Done()
			defer stm.UnregisterThread(tx)
			for iter := 0; iter < 200; iter++ {
				stm.Atomic(tx, 0, func(tx *stm.Tx) error {
					r := row % dim
					first := stm.Read(tx, &matrix[r][0])
					for b := 0; b < dim-1; b++ {
						stm.Write(tx, &matrix[r][b], stm.Read(tx, &matrix[r][b+1]))
					}
					stm.Write(tx, &matrix[r][dim-1], first)
					return nil
				})
			}
		}(tx, i)
	}
	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
	fmt.Fprintf(out, "matrix scenario complete: %d readers, %d writers, %s of matrix touched",
		r, w, units.BytesSize(float64(unsafe.Sizeof(matrix))))
}

// runPrivatizeScenario demonstrates the privatization-safety protocol: a
// committing thread that privatizes an object (removes every shared
// pointer to it) must wait for every other in-flight transaction to
// validate past the commit before it is safe to free that object.
func runPrivatizeScenario(out *bytes.Buffer, args []string) {
	shared := new(int64)
	*shared = 42
	var sharedPtr unsafe.Pointer = unsafe.Pointer(shared)

	txA := stm.RegisterThread()
	defer stm.UnregisterThread(txA)
	txB := stm.RegisterThread()
	defer stm.UnregisterThread(txB)

	var observed int64
	var wg sync.WaitGroup
	wg.Add(1)
	go stm.WithTx(txB, func() {
		defer wg.Done()
		stm.Atomic(txB, 0, func(tx *stm.Tx) error {
			p := (*int64)(stm.ReadPtr(tx, &sharedPtr))
			if p != nil {
				observed = stm.Read(tx, p)
			}
			return nil
		})
	})

	stm.Atomic(txA, 0, func(tx *stm.Tx) error {
		stm.WritePtr(tx, &sharedPtr, nil)
		return nil
	})
	wg.Wait()

	fmt.Fprintf(out, "privatize scenario complete: reader observed value=%d (0 if it ran after the privatizing write)", observed)
}

// runNestedScenario demonstrates closed nesting: an inner atomic block
// that aborts only undoes what it itself wrote, leaving the outer block's
// earlier writes intact.
func runNestedScenario(out *bytes.Buffer, args []string) {
	tx := stm.RegisterThread()
	defer stm.UnregisterThread(tx)

	var a int64
	stm.Atomic(tx, 0, func(tx *stm.Tx) error {
		stm.Write(tx, &a, 1)
		stm.Atomic(tx, 0, func(tx *stm.Tx) error {
			stm.Write(tx, &a, 2)
			return fmt.Errorf("simulated inner failure")
		})
		return nil
	})

	fmt.Fprintf(out, "nested scenario complete: a=%d (expected 1)", a)
}

// runAllocScenario demonstrates TMMalloc/TMFree rollback: an allocation
// inside a transaction that subsequently fails is not visible afterward.
func runAllocScenario(out *bytes.Buffer, args []string) {
	tx := stm.RegisterThread()
	defer stm.UnregisterThread(tx)

	var lastAddr unsafe.Pointer
	err := stm.Atomic(tx, 0, func(tx *stm.Tx) error {
		ptr := stm.TMMalloc(tx, 64)
		lastAddr = ptr
		return fmt.Errorf("rolling back the allocation on purpose")
	})

	fmt.Fprintf(out, "alloc scenario complete: allocated %s at %p then rolled back (%v)",
		units.BytesSize(64), lastAddr, err)
}
