// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package casm

import (
	"fmt"

	"github.com/starkforge/starkforge/felt"
)

// OpCode is the operation code of a single CASM instruction.
type OpCode byte

const (
	// OpAssertEq writes its immediate word to [ap] and advances ap by one.
	OpAssertEq OpCode = iota
	// OpAdvanceAp advances ap by the value of its immediate word.
	OpAdvanceAp
	// OpCall pushes the current frame and continues at the absolute code
	// offset given by its immediate word.
	OpCall
	// OpRet pops the current frame and returns to the stored offset.
	OpRet
	// OpJump continues at the absolute code offset given by its immediate.
	OpJump
	// OpEnd terminates the execution. It is only emitted by the code footer.
	OpEnd
)

func (op OpCode) String() string {
	switch op {
	case OpAssertEq:
		return "assert_eq"
	case OpAdvanceAp:
		return "advance_ap"
	case OpCall:
		return "call"
	case OpRet:
		return "ret"
	case OpJump:
		return "jump"
	case OpEnd:
		return "end"
	default:
		return fmt.Sprintf("invalid(%d)", byte(op))
	}
}

// HasImmediate returns whether instructions with this opcode carry an
// immediate word. Instructions with an immediate occupy two words in the
// encoded instruction stream, all others one.
func (op OpCode) HasImmediate() bool {
	switch op {
	case OpAssertEq, OpAdvanceAp, OpCall, OpJump:
		return true
	default:
		return false
	}
}

// Instruction is a single instruction of a compiled program, together with
// the hints attached to it. Hints are executed by the runtime extension
// chain before the instruction itself is processed.
type Instruction struct {
	Op    OpCode     `json:"op"`
	Imm   *felt.Felt `json:"imm,omitempty"`
	Hints []Hint     `json:"hints,omitempty"`
}

// Size returns the encoded size of the instruction in words.
func (i *Instruction) Size() int {
	if i.Op.HasImmediate() {
		return 2
	}
	return 1
}

// StatementInfo maps one logical statement of the high-level program to its
// physical offset in the instruction stream.
type StatementInfo struct {
	CodeOffset int `json:"code_offset"`
}

// DebugInfo is the statement-to-offset table produced by the compiler.
type DebugInfo struct {
	StatementInfo []StatementInfo `json:"statement_info"`
}

// Program is a compiled test program: the flattened instruction stream plus
// the debug metadata required to locate entry points. Programs are produced
// once by the compilation stage and shared read-only between all test cases
// compiled from the same source unit.
type Program struct {
	Instructions []Instruction `json:"instructions"`
	Debug        DebugInfo     `json:"debug"`
}

// CodeSize returns the total size of the program's instruction stream in
// words.
func (p *Program) CodeSize() int {
	size := 0
	for i := range p.Instructions {
		size += p.Instructions[i].Size()
	}
	return size
}

// TypeInfo describes one parameter or return value of a test function as a
// pair of generic type identifier and flattened size in memory words.
type TypeInfo struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

// TestDetails describes the entry point of a single test function. The
// record is derived at collection time and shared read-only across all
// concurrent runs of the same program.
type TestDetails struct {
	EntryPointOffset int        `json:"entry_point_offset"`
	ParameterTypes   []TypeInfo `json:"parameter_types"`
	ReturnTypes      []TypeInfo `json:"return_types"`
}

// ParameterSize returns the total number of argument words the test
// function expects.
func (d *TestDetails) ParameterSize() int {
	size := 0
	for _, t := range d.ParameterTypes {
		size += t.Size
	}
	return size
}

// ReturnSize returns the total number of return words the test function
// produces.
func (d *TestDetails) ReturnSize() int {
	size := 0
	for _, t := range d.ReturnTypes {
		size += t.Size
	}
	return size
}
