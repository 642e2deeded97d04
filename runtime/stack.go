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
	"io"

	"github.com/starkforge/starkforge/execution"
	"github.com/starkforge/starkforge/state"
)

// Stack is one assembled runtime chain together with handles to the
// layers a run needs to inspect afterwards.
type Stack struct {
	Top     *ExtendedRuntime
	Forge   *ForgeExtension
	Cheat   *CheatExtension
	Handler *execution.SyscallHandler
}

// NewStack assembles the chain for one run, outermost layer first:
// test-framework cheatcodes, direct contract calls, printing, environment
// overrides, and finally genuine syscalls. Hints descend through the
// layers until one of them services the hint.
func NewStack(
	handler *execution.SyscallHandler,
	context *execution.Context,
	env map[string]string,
	contracts map[string]state.ClassHash,
	out io.Writer,
) *Stack {
	forge := &ForgeExtension{EnvironmentVariables: env, Contracts: contracts}
	cheat := &CheatExtension{Context: context, Handler: handler}

	chain := &ExtendedRuntime{
		Extension: forge,
		Inner: &ExtendedRuntime{
			Extension: &CallExtension{Handler: handler},
			Inner: &ExtendedRuntime{
				Extension: &IOExtension{Out: out},
				Inner: &ExtendedRuntime{
					Extension: cheat,
					Inner:     &StarknetRuntime{Handler: handler},
				},
			},
		},
	}
	return &Stack{Top: chain, Forge: forge, Cheat: cheat, Handler: handler}
}
