// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMemoryAccess is produced when reading a cell that was never
	// written.
	ErrInvalidMemoryAccess = errors.New("invalid memory access")

	// ErrInconsistentMemory is produced when rewriting a cell with a
	// different value; memory cells are write-once.
	ErrInconsistentMemory = errors.New("inconsistent memory assignment")

	// ErrUnknownHint is produced when a hint reaches the end of the runtime
	// extension chain without any layer recognizing it.
	ErrUnknownHint = errors.New("unknown hint")
)

// RunError is a fault raised while executing a program: an invalid jump, an
// invalid memory access, or a hint whose execution failed. Run errors are
// recoverable at the test level; they translate into a failed test case,
// not an engine defect.
type RunError struct {
	Offset int // code offset of the faulting instruction
	Cause  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("execution failed at offset %d: %v", e.Offset, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
