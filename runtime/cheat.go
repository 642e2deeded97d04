// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package runtime

import (
	"fmt"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/execution"
	"github.com/starkforge/starkforge/felt"
	"github.com/starkforge/starkforge/state"
	"github.com/starkforge/starkforge/vm"
)

// Cheatcode selectors manipulating what the contract under test observes
// about its environment.
const (
	CheatcodeStartWarp  = "start_warp"
	CheatcodeStopWarp   = "stop_warp"
	CheatcodeStartRoll  = "start_roll"
	CheatcodeStopRoll   = "stop_roll"
	CheatcodeStartPrank = "start_prank"
	CheatcodeStopPrank  = "stop_prank"
)

// CheatState holds the currently active environment overrides. A nil field
// means the override is not active and the real value passes through.
type CheatState struct {
	Timestamp   *uint64
	BlockNumber *uint64
	Caller      *state.Address
}

func (s *CheatState) active() bool {
	return s.Timestamp != nil || s.BlockNumber != nil || s.Caller != nil
}

// CheatExtension services the warp, roll and prank cheatcodes and, while
// any override is active, intercepts the execution-info syscall so that the
// contract under test observes the overridden values.
type CheatExtension struct {
	State   CheatState
	Context *execution.Context
	Handler *execution.SyscallHandler
}

func (e *CheatExtension) Handle(machine *vm.VirtualMachine, hint *casm.Hint) (Outcome, error) {
	if hint.Kind == casm.HintSystemCall {
		if hint.Selector == execution.SyscallGetExecutionInfo && e.State.active() {
			return Handled, e.executionInfo(machine, hint)
		}
		return Forward, nil
	}
	switch hint.Selector {
	case CheatcodeStartWarp:
		return Handled, e.startWarp(machine, hint)
	case CheatcodeStopWarp:
		e.State.Timestamp = nil
		return Handled, nil
	case CheatcodeStartRoll:
		return Handled, e.startRoll(machine, hint)
	case CheatcodeStopRoll:
		e.State.BlockNumber = nil
		return Handled, nil
	case CheatcodeStartPrank:
		return Handled, e.startPrank(machine, hint)
	case CheatcodeStopPrank:
		e.State.Caller = nil
		return Handled, nil
	default:
		return Forward, nil
	}
}

func (e *CheatExtension) startWarp(machine *vm.VirtualMachine, hint *casm.Hint) error {
	value, err := singleInput(machine, hint)
	if err != nil {
		return err
	}
	timestamp, ok := value.Uint64()
	if !ok {
		return fmt.Errorf("start_warp: timestamp %v out of range", value)
	}
	e.State.Timestamp = &timestamp
	return nil
}

func (e *CheatExtension) startRoll(machine *vm.VirtualMachine, hint *casm.Hint) error {
	value, err := singleInput(machine, hint)
	if err != nil {
		return err
	}
	number, ok := value.Uint64()
	if !ok {
		return fmt.Errorf("start_roll: block number %v out of range", value)
	}
	e.State.BlockNumber = &number
	return nil
}

func (e *CheatExtension) startPrank(machine *vm.VirtualMachine, hint *casm.Hint) error {
	value, err := singleInput(machine, hint)
	if err != nil {
		return err
	}
	caller := state.Address(value)
	e.State.Caller = &caller
	return nil
}

// executionInfo mirrors the syscall handler's output layout with active
// overrides substituted for the real values.
func (e *CheatExtension) executionInfo(machine *vm.VirtualMachine, hint *casm.Hint) error {
	if len(hint.Outputs) != 3 {
		return fmt.Errorf("get_execution_info expects three output cells")
	}
	info := e.Context.Block.Info
	blockNumber := info.BlockNumber
	if e.State.BlockNumber != nil {
		blockNumber = *e.State.BlockNumber
	}
	timestamp := info.Timestamp
	if e.State.Timestamp != nil {
		timestamp = *e.State.Timestamp
	}
	caller := e.Handler.CallerAddress
	if e.State.Caller != nil {
		caller = *e.State.Caller
	}
	if err := machine.WriteCell(hint.Outputs[0], felt.New(blockNumber)); err != nil {
		return err
	}
	if err := machine.WriteCell(hint.Outputs[1], felt.New(timestamp)); err != nil {
		return err
	}
	return machine.WriteCell(hint.Outputs[2], felt.Felt(caller))
}

func singleInput(machine *vm.VirtualMachine, hint *casm.Hint) (felt.Felt, error) {
	if len(hint.Inputs) != 1 {
		return felt.Felt{}, fmt.Errorf("%s expects one input cell", hint.Selector)
	}
	return machine.ReadCell(hint.Inputs[0])
}
