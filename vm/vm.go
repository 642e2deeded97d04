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
	"fmt"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/felt"
)

// HintHandler is the callback the VM pauses into whenever the instruction
// at the current program counter carries hints. Implementations are
// provided by the runtime extension chain.
type HintHandler interface {
	// ExecuteHint services a single hint. An error aborts the run with a
	// RunError at the current offset.
	ExecuteHint(machine *VirtualMachine, hint *casm.Hint) error
}

// VirtualMachine executes an assembled instruction stream. A machine is
// run-scoped: it exclusively owns its memory image, register state, and
// resource counters, and must not be shared between concurrent runs.
type VirtualMachine struct {
	instructions []casm.Instruction
	byOffset     map[int]int
	hints        *casm.HintIndex

	memory           *Memory
	programSegment   int
	executionSegment int
	programBase      *Relocatable
	codeSize         int

	pc, ap, fp int
	initialFP  int
	calledOnce bool
	halted     bool

	resources Resources
}

// New creates a machine for the given assembled stream and its per-run hint
// index. The program image is loaded into the program segment; execution
// starts at offset zero with an empty execution segment.
func New(instructions []casm.Instruction, hints *casm.HintIndex) (*VirtualMachine, error) {
	machine := &VirtualMachine{
		instructions: instructions,
		byOffset:     make(map[int]int, len(instructions)),
		hints:        hints,
		memory:       NewMemory(),
	}
	machine.programSegment = machine.memory.AddSegment()
	machine.executionSegment = machine.memory.AddSegment()

	offset := 0
	for i := range instructions {
		machine.byOffset[offset] = i
		instruction := &instructions[i]
		word := Relocatable{machine.programSegment, offset}
		if err := machine.memory.Write(word, felt.New(uint64(instruction.Op))); err != nil {
			return nil, fmt.Errorf("failed to load program: %w", err)
		}
		if instruction.Op.HasImmediate() {
			if instruction.Imm == nil {
				return nil, fmt.Errorf("instruction %v at offset %d is missing its immediate", instruction.Op, offset)
			}
			if err := machine.memory.Write(word.Add(1), *instruction.Imm); err != nil {
				return nil, fmt.Errorf("failed to load program: %w", err)
			}
		}
		offset += instruction.Size()
	}
	machine.codeSize = offset
	base := Relocatable{machine.programSegment, 0}
	machine.programBase = &base
	return machine, nil
}

// RegisterBuiltins initializes zeroed usage counters for the given builtin
// list. Entries remaining at zero after the run are dropped by
// Resources.FilterUnusedBuiltins.
func (m *VirtualMachine) RegisterBuiltins(builtins []string) {
	for _, name := range builtins {
		m.resources.AddBuiltin(name, 0)
	}
}

// Run drives the machine until the footer's halt instruction is reached or
// a fault occurs. Hints attached to the current instruction are delegated
// to the given handler before the instruction executes. This call is
// CPU-bound and not preemptible.
func (m *VirtualMachine) Run(handler HintHandler) error {
	for !m.halted {
		index, found := m.byOffset[m.pc]
		if !found {
			return &RunError{Offset: m.pc, Cause: fmt.Errorf("invalid program counter")}
		}
		instruction := &m.instructions[index]

		for _, params := range m.hints.ParamsAt(m.pc) {
			hint, found := m.hints.Resolve(params.ID)
			if !found {
				// A registered offset without a resolvable payload means the
				// index itself is corrupted, not the program.
				return fmt.Errorf("hint index is missing payload for offset %d", m.pc)
			}
			if err := handler.ExecuteHint(m, hint); err != nil {
				return &RunError{Offset: m.pc, Cause: err}
			}
		}

		if err := m.execute(instruction); err != nil {
			return &RunError{Offset: m.pc, Cause: err}
		}
		m.resources.Steps++
	}
	return nil
}

func (m *VirtualMachine) execute(instruction *casm.Instruction) error {
	next := m.pc + instruction.Size()
	switch instruction.Op {
	case casm.OpAssertEq:
		target := Relocatable{m.executionSegment, m.ap}
		if err := m.memory.Write(target, *instruction.Imm); err != nil {
			return err
		}
		m.resources.AddBuiltin(BuiltinRangeCheck, 1)
		m.ap++
	case casm.OpAdvanceAp:
		amount, ok := instruction.Imm.Uint64()
		if !ok {
			return fmt.Errorf("ap advance does not fit a machine word")
		}
		m.ap += int(amount)
	case casm.OpCall:
		target, ok := instruction.Imm.Uint64()
		if !ok {
			return fmt.Errorf("call target does not fit a machine word")
		}
		frame := Relocatable{m.executionSegment, m.ap}
		if err := m.memory.Write(frame, felt.New(uint64(m.fp))); err != nil {
			return err
		}
		if err := m.memory.Write(frame.Add(1), felt.New(uint64(next))); err != nil {
			return err
		}
		m.ap += 2
		m.fp = m.ap
		if !m.calledOnce {
			m.initialFP = m.fp
			m.calledOnce = true
		}
		m.pc = int(target)
		return nil
	case casm.OpRet:
		returnPc, err := m.memory.Read(Relocatable{m.executionSegment, m.fp - 1})
		if err != nil {
			return err
		}
		returnFp, err := m.memory.Read(Relocatable{m.executionSegment, m.fp - 2})
		if err != nil {
			return err
		}
		pc, ok := returnPc.Uint64()
		if !ok {
			return fmt.Errorf("corrupted return address")
		}
		fp, ok := returnFp.Uint64()
		if !ok {
			return fmt.Errorf("corrupted frame pointer")
		}
		m.pc = int(pc)
		m.fp = int(fp)
		return nil
	case casm.OpJump:
		target, ok := instruction.Imm.Uint64()
		if !ok {
			return fmt.Errorf("jump target does not fit a machine word")
		}
		m.pc = int(target)
		return nil
	case casm.OpEnd:
		m.halted = true
		return nil
	default:
		return fmt.Errorf("unknown opcode %v", instruction.Op)
	}
	m.pc = next
	return nil
}

// --- accessors used by the runtime extension chain and the executor ---

// ResolveCell translates a register-relative cell reference into an
// absolute address of the execution segment.
func (m *VirtualMachine) ResolveCell(ref casm.CellRef) Relocatable {
	base := m.ap
	if ref.Reg == casm.FP {
		base = m.fp
	}
	return Relocatable{m.executionSegment, base + ref.Offset}
}

// ReadCell reads the cell referenced relative to the current registers.
func (m *VirtualMachine) ReadCell(ref casm.CellRef) (felt.Felt, error) {
	return m.memory.Read(m.ResolveCell(ref))
}

// WriteCell writes the cell referenced relative to the current registers.
func (m *VirtualMachine) WriteCell(ref casm.CellRef, value felt.Felt) error {
	return m.memory.Write(m.ResolveCell(ref), value)
}

func (m *VirtualMachine) Memory() *Memory {
	return m.memory
}

func (m *VirtualMachine) Ap() int {
	return m.ap
}

// ValueAt reads a cell of the execution segment by absolute offset.
func (m *VirtualMachine) ValueAt(offset int) (felt.Felt, error) {
	return m.memory.Read(Relocatable{m.executionSegment, offset})
}

// ProgramBase returns the base address of the loaded program. The second
// return value is false if the machine was never initialized.
func (m *VirtualMachine) ProgramBase() (Relocatable, bool) {
	if m.programBase == nil {
		return Relocatable{}, false
	}
	return *m.programBase, true
}

// CodeSize returns the size of the loaded instruction stream in words.
func (m *VirtualMachine) CodeSize() int {
	return m.codeSize
}

// InitialFp returns the frame pointer established by the entry code's call
// into the test function. The second return value is false if no call was
// ever executed.
func (m *VirtualMachine) InitialFp() (int, bool) {
	return m.initialFP, m.calledOnce
}

// ExecutionSegment returns the index of the execution segment.
func (m *VirtualMachine) ExecutionSegment() int {
	return m.executionSegment
}

// UsedResources returns the resource usage of the run so far, with memory
// holes counted from the current memory image. Call it after finalization
// has marked the code and argument regions as accessed.
func (m *VirtualMachine) UsedResources() Resources {
	resources := m.resources.Clone()
	resources.MemoryHoles = m.memory.CountHoles()
	return resources
}
