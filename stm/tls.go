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

import "github.com/jtolds/gls"

// txMgr is a goroutine-local context manager, used exactly the way
// storage/scan.go, storage/compute.go and storage/partition.go use
// gls.Go/gls.ContextManager to propagate per-goroutine context: the
// internal engine always threads *Tx explicitly (spec.md §9's "pass the Tx
// handle explicitly into every barrier call"); txMgr only lets code running
// under SpawnThread/WithTx look its *Tx up through CurrentTx. The barrier
// functions in this package all take the *Tx as a parameter.
var txMgr = gls.NewContextManager()

const txGlsKey = "stm_tx"

// SpawnThread registers tx as the current goroutine-local transaction
// descriptor for the lifetime of fn, then runs fn in a new goroutine that
// inherits it — the same shape as gls.Go, specialized to carry a *Tx.
func SpawnThread(tx *Tx, fn func()) {
	gls.Go(func() {
		txMgr.SetValues(gls.Values{txGlsKey: tx}, fn)
	})
}

// WithTx runs fn with tx bound as the current goroutine-local transaction,
// for callers that want the ambient CurrentTx() convenience without
// spawning a new goroutine.
func WithTx(tx *Tx, fn func()) {
	txMgr.SetValues(gls.Values{txGlsKey: tx}, fn)
}

// CurrentTx returns the active *Tx bound via SpawnThread/WithTx on this
// goroutine's call stack, or nil.
func CurrentTx() *Tx {
	v, ok := txMgr.GetValue(txGlsKey)
	if !ok {
		return nil
	}
	tx, _ := v.(*Tx)
	return tx
}
