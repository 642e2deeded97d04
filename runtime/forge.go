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
	"github.com/starkforge/starkforge/felt"
	"github.com/starkforge/starkforge/state"
	"github.com/starkforge/starkforge/vm"
)

// Cheatcode selectors serviced by the test-framework layer.
const (
	CheatcodeReadEnvVar       = "read_env_var"
	CheatcodeDeclaredContract = "declared_contract"
)

// ForgeExtension is the outermost layer, resolving test-framework hints:
// injected environment variables and the class hashes of contracts
// declared for the test run.
type ForgeExtension struct {
	EnvironmentVariables map[string]string
	Contracts            map[string]state.ClassHash
}

func (e *ForgeExtension) Handle(machine *vm.VirtualMachine, hint *casm.Hint) (Outcome, error) {
	if hint.Kind != casm.HintCheatcode {
		return Forward, nil
	}
	switch hint.Selector {
	case CheatcodeReadEnvVar:
		return Handled, e.readEnvVar(machine, hint)
	case CheatcodeDeclaredContract:
		return Handled, e.declaredContract(machine, hint)
	default:
		return Forward, nil
	}
}

func (e *ForgeExtension) readEnvVar(machine *vm.VirtualMachine, hint *casm.Hint) error {
	if len(hint.Inputs) != 1 || len(hint.Outputs) != 1 {
		return fmt.Errorf("read_env_var expects one input and one output cell")
	}
	nameCell, err := machine.ReadCell(hint.Inputs[0])
	if err != nil {
		return err
	}
	name := nameCell.ToShortString()
	raw, found := e.EnvironmentVariables[name]
	if !found {
		return fmt.Errorf("environment variable %q is not defined", name)
	}
	value, err := parseFeltValue(raw)
	if err != nil {
		return fmt.Errorf("environment variable %q holds a malformed value: %w", name, err)
	}
	return machine.WriteCell(hint.Outputs[0], value)
}

func (e *ForgeExtension) declaredContract(machine *vm.VirtualMachine, hint *casm.Hint) error {
	if len(hint.Inputs) != 1 || len(hint.Outputs) != 1 {
		return fmt.Errorf("declared_contract expects one input and one output cell")
	}
	nameCell, err := machine.ReadCell(hint.Inputs[0])
	if err != nil {
		return err
	}
	name := nameCell.ToShortString()
	class, found := e.Contracts[name]
	if !found {
		return fmt.Errorf("contract %q was not declared for this test run", name)
	}
	return machine.WriteCell(hint.Outputs[0], felt.Felt(class))
}

// parseFeltValue interprets an injected variable: hex-prefixed values are
// parsed as felts, everything else is encoded as a short string.
func parseFeltValue(raw string) (felt.Felt, error) {
	if len(raw) >= 2 && raw[:2] == "0x" {
		var value felt.Felt
		if err := value.UnmarshalText([]byte(raw)); err != nil {
			return felt.Felt{}, err
		}
		return value, nil
	}
	return felt.FromString(raw)
}
