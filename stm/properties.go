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

// Properties is the bitset accepted by Begin, mirroring the property flags
// an instrumented compiler would pass at the top of an atomic region.
type Properties uint32

const (
	PrInstrumentedCode Properties = 1 << iota
	PrUninstrumentedCode
	PrMultiwayCode
	PrHasNoXMMUpdate
	PrHasNoAbort
	PrHasNoRetry
	PrHasNoIrrevocable
	PrDoesGoIrrevocable
	PrAWBarriersOmitted
	PrRaRBarriersOmitted
	PrUndoLogCode
	PrPreferUninstrumented
	PrExceptionBlock
	PrHasElse
	PrReadOnly
)

func (p Properties) Has(flag Properties) bool {
	return p&flag != 0
}

var propertyNames = []struct {
	flag Properties
	name string
}{
	{PrInstrumentedCode, "InstrumentedCode"},
	{PrUninstrumentedCode, "UninstrumentedCode"},
	{PrMultiwayCode, "MultiwayCode"},
	{PrHasNoXMMUpdate, "HasNoXMMUpdate"},
	{PrHasNoAbort, "HasNoAbort"},
	{PrHasNoRetry, "HasNoRetry"},
	{PrHasNoIrrevocable, "HasNoIrrevocable"},
	{PrDoesGoIrrevocable, "DoesGoIrrevocable"},
	{PrAWBarriersOmitted, "AWBarriersOmitted"},
	{PrRaRBarriersOmitted, "RaRBarriersOmitted"},
	{PrUndoLogCode, "UndoLogCode"},
	{PrPreferUninstrumented, "PreferUninstrumented"},
	{PrExceptionBlock, "ExceptionBlock"},
	{PrHasElse, "HasElse"},
	{PrReadOnly, "ReadOnly"},
}

// String renders the set flags, e.g. "ReadOnly|HasNoRetry". Hand-written
// rather than stringer-generated since Properties is a bitset, not a
// sequential enum.
func (p Properties) String() string {
	if p == 0 {
		return "none"
	}
	s := ""
	for _, e := range propertyNames {
		if p.Has(e.flag) {
			if s != "" {
				s += "|"
			}
			s += e.name
		}
	}
	return s
}
