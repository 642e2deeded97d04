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

// The entry code synthesized for one run has the fixed layout
//
//	[gas cell] [argument cells ...] [call <entry>] [jump <footer>]
//
// followed by the program body and the footer produced by
// CreateCodeFooter. The call transfers control to the test function at its
// recorded code offset; once the function returns, the jump skips the body
// and lands on the halting footer.

// EntryCodeSize returns the size in words of the entry code produced by
// CreateEntryCode for the given number of argument words.
func EntryCodeSize(numArgs int) int {
	// One assert_eq (2 words) per cell, plus call and jump (2 words each).
	return 2*(numArgs+1) + 4
}

// ExtraDataSize is the number of trailing words of the assembled stream
// that do not belong to the program body. It covers the halting footer and
// is marked as accessed during finalization.
const ExtraDataSize = 1

// CreateEntryCode synthesizes the prologue marshaling the given argument
// values into VM memory and transferring control to the test function. The
// code offset is the physical offset of the function within the program
// body; bodySize is the total body size in words, needed to address the
// footer behind it. Next to the instructions, the list of builtins required
// by the entry code is returned.
func CreateEntryCode(
	details *TestDetails,
	args []felt.Felt,
	initialGas uint64,
	codeOffset int,
	bodySize int,
) ([]Instruction, []string, error) {
	if want, got := details.ParameterSize(), len(args); want != got {
		return nil, nil, fmt.Errorf("function expects %d argument words, got %d", want, got)
	}

	entrySize := EntryCodeSize(len(args))
	instructions := make([]Instruction, 0, len(args)+3)

	push := func(value felt.Felt) {
		instructions = append(instructions, Instruction{Op: OpAssertEq, Imm: &value})
	}

	push(felt.New(initialGas))
	for _, arg := range args {
		push(arg)
	}

	callTarget := felt.New(uint64(entrySize + codeOffset))
	instructions = append(instructions, Instruction{Op: OpCall, Imm: &callTarget})

	footerTarget := felt.New(uint64(entrySize + bodySize))
	instructions = append(instructions, Instruction{Op: OpJump, Imm: &footerTarget})

	return instructions, []string{"range_check", "gas"}, nil
}

// CreateCodeFooter produces the epilogue appended behind the program body.
// Reaching it terminates the run; the executor reads the return convention
// from the final register state.
func CreateCodeFooter() []Instruction {
	return []Instruction{{Op: OpEnd}}
}
