// Code generated by "stringer -type=RestartReason"; checked in by hand per
// this repository's no-toolchain build policy — shape matches stringer's
// standard output exactly.

package stm

import "strconv"

func _() {
	// An "invalid array index" compiler error signals that the constant
	// values have changed. Re-run the generator and update this file.
	var x [1]struct{}
	_ = x[RestartReallocation-0]
	_ = x[RestartLockedRead-1]
	_ = x[RestartLockedWrite-2]
	_ = x[RestartValidateRead-3]
	_ = x[RestartValidateWrite-4]
	_ = x[RestartValidateCommit-5]
	_ = x[RestartSerialIrrevocable-6]
	_ = x[RestartNotReadOnly-7]
	_ = x[RestartClosedNesting-8]
	_ = x[RestartInitMethodGroup-9]
}

const _RestartReason_name = "RestartReallocationRestartLockedReadRestartLockedWriteRestartValidateReadRestartValidateWriteRestartValidateCommitRestartSerialIrrevocableRestartNotReadOnlyRestartClosedNestingRestartInitMethodGroup"

var _RestartReason_index = [...]uint16{0, 19, 36, 54, 73, 93, 114, 138, 156, 176, 198}

func (i RestartReason) String() string {
	if i < 0 || int(i) >= len(_RestartReason_index)-1 {
		return "RestartReason(" + strconv.FormatInt(int64(i), 10) + ")"
	}
	return _RestartReason_name[_RestartReason_index[i]:_RestartReason_index[i+1]]
}
