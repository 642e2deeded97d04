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
	"testing"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/felt"
)

type recordingHandler struct {
	selectors []string
	fail      error
}

func (h *recordingHandler) ExecuteHint(machine *VirtualMachine, hint *casm.Hint) error {
	h.selectors = append(h.selectors, hint.Selector)
	return h.fail
}

func imm(value uint64) *felt.Felt {
	f := felt.New(value)
	return &f
}

func assemble(body []casm.Instruction) []casm.Instruction {
	stream := append([]casm.Instruction{}, body...)
	return append(stream, casm.CreateCodeFooter()...)
}

func TestVirtualMachine_RunsToCompletion(t *testing.T) {
	// Write two values, call a function that returns, and halt.
	bodySize := 0
	body := []casm.Instruction{
		{Op: casm.OpAssertEq, Imm: imm(7)},  // offset 0
		{Op: casm.OpAssertEq, Imm: imm(9)},  // offset 2
		{Op: casm.OpCall, Imm: imm(8)},      // offset 4
		{Op: casm.OpJump, Imm: imm(9)},      // offset 6 -> footer
		{Op: casm.OpRet},                    // offset 8, the function
	}
	for i := range body {
		bodySize += body[i].Size()
	}
	stream := assemble(body)

	machine, err := New(stream, casm.BuildHintIndex(stream))
	if err != nil {
		t.Fatalf("failed to initialize the machine: %v", err)
	}
	if err := machine.Run(&recordingHandler{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got, err := machine.ValueAt(0); err != nil || got != felt.New(7) {
		t.Errorf("unexpected first cell: %v, %v", got, err)
	}
	if got, err := machine.ValueAt(1); err != nil || got != felt.New(9) {
		t.Errorf("unexpected second cell: %v, %v", got, err)
	}
	if fp, ok := machine.InitialFp(); !ok || fp != 4 {
		t.Errorf("unexpected initial frame pointer: %d, %t", fp, ok)
	}
}

func TestVirtualMachine_HintsFireInAttachmentOrder(t *testing.T) {
	stream := assemble([]casm.Instruction{
		{Op: casm.OpAssertEq, Imm: imm(1), Hints: []casm.Hint{
			{Kind: casm.HintCheatcode, Selector: "first"},
			{Kind: casm.HintCheatcode, Selector: "second"},
		}},
		{Op: casm.OpJump, Imm: imm(4)},
	})

	machine, err := New(stream, casm.BuildHintIndex(stream))
	if err != nil {
		t.Fatalf("failed to initialize the machine: %v", err)
	}
	handler := &recordingHandler{}
	if err := machine.Run(handler); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(handler.selectors) != 2 || handler.selectors[0] != "first" || handler.selectors[1] != "second" {
		t.Errorf("unexpected hint order: %v", handler.selectors)
	}
}

func TestVirtualMachine_HandlerErrorBecomesRunError(t *testing.T) {
	stream := assemble([]casm.Instruction{
		{Op: casm.OpRet, Hints: []casm.Hint{{Kind: casm.HintCheatcode, Selector: "boom"}}},
	})
	machine, err := New(stream, casm.BuildHintIndex(stream))
	if err != nil {
		t.Fatalf("failed to initialize the machine: %v", err)
	}

	cause := fmt.Errorf("hint exploded")
	err = machine.Run(&recordingHandler{fail: cause})

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected a run error, got %v", err)
	}
	if runErr.Offset != 0 || !errors.Is(runErr, cause) {
		t.Errorf("unexpected run error content: %v", runErr)
	}
}

func TestVirtualMachine_InvalidJumpIsARunError(t *testing.T) {
	stream := assemble([]casm.Instruction{
		{Op: casm.OpJump, Imm: imm(1)}, // offset 1 is inside the jump itself
	})
	machine, err := New(stream, casm.BuildHintIndex(stream))
	if err != nil {
		t.Fatalf("failed to initialize the machine: %v", err)
	}

	err = machine.Run(&recordingHandler{})
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected a run error, got %v", err)
	}
}

func TestVirtualMachine_MissingImmediateIsRejectedAtLoadTime(t *testing.T) {
	if _, err := New([]casm.Instruction{{Op: casm.OpCall}}, casm.BuildHintIndex(nil)); err == nil {
		t.Errorf("expected an error for a call without target, got none")
	}
}

func TestVirtualMachine_DeterministicResources(t *testing.T) {
	stream := assemble([]casm.Instruction{
		{Op: casm.OpAssertEq, Imm: imm(1)},
		{Op: casm.OpAssertEq, Imm: imm(2)},
		{Op: casm.OpJump, Imm: imm(6)},
	})

	run := func() Resources {
		machine, err := New(stream, casm.BuildHintIndex(stream))
		if err != nil {
			t.Fatalf("failed to initialize the machine: %v", err)
		}
		if err := machine.Run(&recordingHandler{}); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		return machine.UsedResources()
	}

	first, second := run(), run()
	if first.Steps != second.Steps || first.MemoryHoles != second.MemoryHoles {
		t.Errorf("resource usage is not deterministic: %+v vs %+v", first, second)
	}
	if first.BuiltinCounters[BuiltinRangeCheck] != 2 {
		t.Errorf("unexpected range check usage: %d", first.BuiltinCounters[BuiltinRangeCheck])
	}
}

func TestMemory_WriteOnceSemantics(t *testing.T) {
	memory := NewMemory()
	segment := memory.AddSegment()
	address := Relocatable{segment, 0}

	if err := memory.Write(address, felt.New(1)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := memory.Write(address, felt.New(1)); err != nil {
		t.Fatalf("idempotent re-write failed: %v", err)
	}
	if err := memory.Write(address, felt.New(2)); !errors.Is(err, ErrInconsistentMemory) {
		t.Errorf("expected an inconsistent memory error, got %v", err)
	}
}

func TestMemory_ReadingUnknownCellFails(t *testing.T) {
	memory := NewMemory()
	segment := memory.AddSegment()
	if _, err := memory.Read(Relocatable{segment, 3}); !errors.Is(err, ErrInvalidMemoryAccess) {
		t.Errorf("expected an invalid memory access, got %v", err)
	}
	if _, err := memory.Read(Relocatable{segment + 1, 0}); !errors.Is(err, ErrInvalidMemoryAccess) {
		t.Errorf("expected an invalid memory access, got %v", err)
	}
}

func TestMemory_HolesAreUnaccessedCells(t *testing.T) {
	memory := NewMemory()
	segment := memory.AddSegment()
	for i := 0; i < 4; i++ {
		if err := memory.Write(Relocatable{segment, i}, felt.New(uint64(i))); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	if got := memory.CountHoles(); got != 4 {
		t.Fatalf("expected 4 unaccessed cells, got %d", got)
	}

	if _, err := memory.Read(Relocatable{segment, 0}); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	memory.MarkAccessed(Relocatable{segment, 1}, 2)

	if got := memory.CountHoles(); got != 1 {
		t.Errorf("expected 1 remaining hole, got %d", got)
	}
}

func TestResources_SubDiscountsWithoutGoingNegative(t *testing.T) {
	total := Resources{Steps: 10, BuiltinCounters: map[string]int{BuiltinRangeCheck: 3}}
	inner := Resources{Steps: 4, BuiltinCounters: map[string]int{BuiltinRangeCheck: 5}}

	total.Sub(inner)

	if total.Steps != 6 {
		t.Errorf("unexpected step count: %d", total.Steps)
	}
	if total.BuiltinCounters[BuiltinRangeCheck] != 0 {
		t.Errorf("expected a saturated builtin counter, got %d", total.BuiltinCounters[BuiltinRangeCheck])
	}
}

func TestResources_FilterUnusedBuiltinsDropsZeroEntries(t *testing.T) {
	resources := Resources{BuiltinCounters: map[string]int{
		BuiltinRangeCheck: 2,
		BuiltinGas:        0,
	}}

	filtered := resources.FilterUnusedBuiltins()

	if _, found := filtered.BuiltinCounters[BuiltinGas]; found {
		t.Errorf("zero-valued builtin was not filtered")
	}
	if filtered.BuiltinCounters[BuiltinRangeCheck] != 2 {
		t.Errorf("used builtin was lost during filtering")
	}
	if resources.BuiltinCounters[BuiltinGas] != 0 {
		t.Errorf("filtering must not mutate the receiver")
	}
}
