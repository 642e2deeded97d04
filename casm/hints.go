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
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HintKind distinguishes the two classes of hints found in compiled test
// programs: genuine Starknet system calls and test-framework cheatcodes.
type HintKind byte

const (
	HintSystemCall HintKind = iota
	HintCheatcode
)

func (k HintKind) String() string {
	switch k {
	case HintSystemCall:
		return "system_call"
	case HintCheatcode:
		return "cheatcode"
	default:
		return fmt.Sprintf("invalid(%d)", byte(k))
	}
}

// Register identifies the VM register a CellRef is relative to.
type Register byte

const (
	AP Register = iota
	FP
)

func (r Register) String() string {
	switch r {
	case AP:
		return "ap"
	case FP:
		return "fp"
	default:
		return fmt.Sprintf("invalid(%d)", byte(r))
	}
}

// CellRef is a register-relative reference to a memory cell of the
// execution segment, resolved against the VM registers at the time the
// owning hint fires.
type CellRef struct {
	Reg    Register `json:"reg"`
	Offset int      `json:"offset"`
}

// Hint is an out-of-band directive attached to an instruction. The VM pauses
// on instructions carrying hints and delegates them to the runtime extension
// chain instead of executing them natively. Input cells are read, output
// cells written by whichever extension services the hint.
type Hint struct {
	Kind     HintKind  `json:"kind"`
	Selector string    `json:"selector"`
	Inputs   []CellRef `json:"inputs,omitempty"`
	Outputs  []CellRef `json:"outputs,omitempty"`
}

func (h *Hint) String() string {
	return fmt.Sprintf("%v(%s)", h.Kind, h.Selector)
}

// HintID is the structural identity of a hint: a keccak-256 hash of its
// canonical binary encoding. Using a hash of the decoded form rather than a
// formatted string keeps identities stable across formatting changes.
type HintID [32]byte

// ID returns the structural identity of the hint.
func (h *Hint) ID() (id HintID) {
	hasher := sha3.NewLegacyKeccak256()
	var scratch [8]byte
	writeInt := func(v int) {
		binary.BigEndian.PutUint64(scratch[:], uint64(v))
		hasher.Write(scratch[:])
	}
	hasher.Write([]byte{byte(h.Kind)})
	writeInt(len(h.Selector))
	hasher.Write([]byte(h.Selector))
	writeCells := func(cells []CellRef) {
		writeInt(len(cells))
		for _, c := range cells {
			hasher.Write([]byte{byte(c.Reg)})
			writeInt(c.Offset)
		}
	}
	writeCells(h.Inputs)
	writeCells(h.Outputs)
	hasher.Sum(id[:0])
	return id
}

// HintParams is the per-offset registration of one hint, as stored in the
// offset index. It carries only the identity; the payload is resolved
// through the identity index.
type HintParams struct {
	ID HintID
}

// HintIndex is the result of a single forward pass over an assembled
// instruction stream: an offset index telling the VM where to pause, and an
// identity index resolving what a paused hint means. Since entry code length
// depends on the argument count, the index is rebuilt for every run.
type HintIndex struct {
	params map[int][]HintParams
	hints  map[HintID]*Hint
}

// BuildHintIndex scans the given instruction stream once, accumulating a
// running word offset, and registers every attached hint under its
// structural identity. An empty stream yields empty indexes.
func BuildHintIndex(instructions []Instruction) *HintIndex {
	index := &HintIndex{
		params: map[int][]HintParams{},
		hints:  map[HintID]*Hint{},
	}
	offset := 0
	for i := range instructions {
		instruction := &instructions[i]
		for j := range instruction.Hints {
			hint := &instruction.Hints[j]
			id := hint.ID()
			index.hints[id] = hint
			index.params[offset] = append(index.params[offset], HintParams{ID: id})
		}
		offset += instruction.Size()
	}
	return index
}

// ParamsAt returns the hint registrations attached to the instruction at
// the given code offset, in attachment order.
func (x *HintIndex) ParamsAt(offset int) []HintParams {
	return x.params[offset]
}

// Resolve maps a hint identity back to its payload. The second return value
// is false for identities that were never registered.
func (x *HintIndex) Resolve(id HintID) (*Hint, bool) {
	hint, found := x.hints[id]
	return hint, found
}

// NumOffsets returns the number of code offsets carrying at least one hint.
func (x *HintIndex) NumOffsets() int {
	return len(x.params)
}
