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
	"io"
	"os"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/vm"
)

// CheatcodePrint writes a value from test code to the runner's output.
const CheatcodePrint = "print"

// IOExtension services print hints. Output goes to Out, defaulting to
// standard output.
type IOExtension struct {
	Out io.Writer
}

func (e *IOExtension) Handle(machine *vm.VirtualMachine, hint *casm.Hint) (Outcome, error) {
	if hint.Kind != casm.HintCheatcode || hint.Selector != CheatcodePrint {
		return Forward, nil
	}
	if len(hint.Inputs) != 1 {
		return Handled, fmt.Errorf("print expects one input cell")
	}
	value, err := machine.ReadCell(hint.Inputs[0])
	if err != nil {
		return Handled, err
	}
	out := e.Out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintf(out, "%s\n", value.ToShortString())
	return Handled, err
}
