// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package execution

import (
	"github.com/starkforge/starkforge/state"
	"github.com/starkforge/starkforge/vm"
)

// Gas cost parameters. Steps and builtins are priced per invocation,
// state effects per modified entry.
const (
	stepGasCost       = 100
	memoryHoleGasCost = 10

	storageWriteGasCost = 1_000
	deployGasCost       = 5_000
	eventGasCost        = 300
)

var builtinGasCosts = map[string]uint64{
	vm.BuiltinRangeCheck: 70,
	vm.BuiltinPedersen:   4_050,
	vm.BuiltinEcOp:       5_110,
}

// CalculateUsedGas computes the total gas attributed to one run from its
// resource counters and the chain-state diff it produced. The computation
// is a pure function of its inputs; identical runs yield identical totals.
func CalculateUsedGas(context *Context, diff state.Diff, resources vm.Resources) uint64 {
	steps := min(resources.Steps, context.Block.MaxSteps)
	gas := uint64(steps) * stepGasCost
	gas += uint64(resources.MemoryHoles) * memoryHoleGasCost
	for name, count := range resources.BuiltinCounters {
		gas += uint64(count) * builtinGasCosts[name]
	}
	gas += uint64(diff.ModifiedSlots) * storageWriteGasCost
	gas += uint64(diff.DeployedContracts) * deployGasCost
	gas += uint64(diff.Events) * eventGasCost
	return gas
}
