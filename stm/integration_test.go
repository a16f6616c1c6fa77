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
	"testing"
	"unsafe"
)

// TestConcurrentCounterNoLostUpdates is the canonical STM stress test: many
// goroutines incrementing a shared counter inside Atomic must never lose an
// update, regardless of how many times any individual transaction restarts.
func TestConcurrentCounterNoLostUpdates(t *testing.T) {
	const threads = 8
	const itersPerThread = 500

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		tx := RegisterThread()
		go func(tx *Tx) {
			defer wg.Done()
			defer UnregisterThread(tx)
			for j := 0; j < itersPerThread; j++ {
				Atomic(tx, 0, func(tx *Tx) error {
					v := Read(tx, &counter)
					Write(tx, &counter, v+1)
					return nil
				})
			}
		}(tx)
	}
	wg.Wait()

	if counter != int64(threads*itersPerThread) {
		t.Fatalf("expected counter == %d, got %d (lost update)", threads*itersPerThread, counter)
	}
}

// TestConcurrentMatrixRotationPreservesInvariant runs writers that
// cyclically rotate a row (sum-preserving) concurrently with readers that
// sum the whole matrix; every observed sum must equal the invariant total,
// proving opacity (a reader never sees a partial write).
func TestConcurrentMatrixRotationPreservesInvariant(t *testing.T) {
	const dim = 8
	var matrix [dim][dim]int64
	want := int64(0)
	for a := 0; a < dim; a++ {
		for b := 0; b < dim; b++ {
			matrix[a][b] = int64(a*dim + b)
			want += matrix[a][b]
		}
	}

	var readersWG, writersWG sync.WaitGroup
	stop := make(chan struct{})
	badSum := make(chan int64, 1)

	for i := 0; i < 4; i++ {
		readersWG.Add(1)
		tx := RegisterThread()
		go func(tx *Tx) {
			defer readersWG.Done()
			defer UnregisterThread(tx)
			for {
				select {
				case <-stop:
					return
				default:
				}
				Atomic(tx, 0, func(tx *Tx) error {
					var sum int64
					for a := 0; a < dim; a++ {
						for b := 0; b < dim; b++ {
							sum += Read(tx, &matrix[a][b])
						}
					}
					if sum != want {
						select {
						case badSum <- sum:
						default:
						}
					}
					return nil
				})
			}
		}(tx)
	}

	for i := 0; i < 2; i++ {
		writersWG.Add(1)
		tx := RegisterThread()
		go func(tx *Tx, row int) {
			defer writersWG.Done()
			defer UnregisterThread(tx)
			r := row % dim
			for iter := 0; iter < 100; iter++ {
				Atomic(tx, 0, func(tx *Tx) error {
					first := Read(tx, &matrix[r][0])
					for b := 0; b < dim-1; b++ {
						Write(tx, &matrix[r][b], Read(tx, &matrix[r][b+1]))
					}
					Write(tx, &matrix[r][dim-1], first)
					return nil
				})
			}
		}(tx, i)
	}

	writersWG.Wait()
	close(stop)
	readersWG.Wait()

	select {
	case bad := <-badSum:
		t.Fatalf("reader observed torn sum %d, want %d", bad, want)
	default:
	}
}

// TestPrivatizationQuiesceWaitsForReaders exercises the quiescence
// protocol directly: a privatizing writer must not proceed past quiesce
// until every other registered thread's start time is at least as new as
// the privatizing write.
func TestPrivatizationQuiesceWaitsForReaders(t *testing.T) {
	writer := RegisterThread()
	defer UnregisterThread(writer)
	reader := RegisterThread()
	defer UnregisterThread(reader)

	reader.startTime.Store(1)

	done := make(chan struct{})
	go func() {
		quiesce(writer, 5)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("quiesce returned before the stale reader advanced")
	default:
	}

	reader.startTime.Store(5)

	<-done
}

func TestPrivatizationPointerHandoff(t *testing.T) {
	tx := RegisterThread()
	defer UnregisterThread(tx)

	val := int64(42)
	var shared unsafe.Pointer = unsafe.Pointer(&val)

	Atomic(tx, 0, func(tx *Tx) error {
		p := ReadPtr(tx, &shared)
		if p == nil {
			t.Fatal("expected non-nil shared pointer before privatization")
		}
		return nil
	})

	Atomic(tx, 0, func(tx *Tx) error {
		WritePtr(tx, &shared, nil)
		return nil
	})

	if shared != nil {
		t.Fatal("expected shared pointer to be nil after privatizing write")
	}
}
