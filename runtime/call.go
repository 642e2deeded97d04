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

// CheatcodeCallContract lets test code call a deployed contract directly,
// outside the syscall surface of the program under test.
const CheatcodeCallContract = "call_contract"

// CallExtension redirects direct contract-call hints into the engine's
// call machinery and marshals the nested call result back into VM memory.
type CallExtension struct {
	Handler *execution.SyscallHandler
}

func (e *CallExtension) Handle(machine *vm.VirtualMachine, hint *casm.Hint) (Outcome, error) {
	if hint.Kind != casm.HintCheatcode || hint.Selector != CheatcodeCallContract {
		return Forward, nil
	}
	return Handled, e.call(machine, hint)
}

func (e *CallExtension) call(machine *vm.VirtualMachine, hint *casm.Hint) error {
	if len(hint.Inputs) != 3 || len(hint.Outputs) != 1 {
		return fmt.Errorf("call_contract expects three input cells and one output cell")
	}
	target, err := machine.ReadCell(hint.Inputs[0])
	if err != nil {
		return err
	}
	selector, err := machine.ReadCell(hint.Inputs[1])
	if err != nil {
		return err
	}
	calldata, err := machine.ReadCell(hint.Inputs[2])
	if err != nil {
		return err
	}

	result, err := e.Handler.CallContract(machine, state.Address(target), selector, []felt.Felt{calldata})
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	return machine.WriteCell(hint.Outputs[0], felt.New(uint64(len(result))))
}
