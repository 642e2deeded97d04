// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package runtime composes the VM's single hint entry point out of an
// ordered chain of behavior layers. Each layer may fully service a hint or
// pass it to the next inner layer; the innermost layer is backed by the
// chain execution engine's syscall handler. One chain is assembled per run;
// layers hold exclusive access to run-scoped state and must never be
// shared between concurrent runs.
package runtime

import (
	"fmt"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/execution"
	"github.com/starkforge/starkforge/vm"
)

// Outcome reports whether an extension serviced a hint or wants it
// forwarded to the next inner layer.
type Outcome int

const (
	Handled Outcome = iota
	Forward
)

// Extension is a single capability layer of the runtime chain. A layer
// must forward every hint it does not recognize; failing to forward
// silently drops functionality of the layers beneath it.
type Extension interface {
	Handle(machine *vm.VirtualMachine, hint *casm.Hint) (Outcome, error)
}

// ExtendedRuntime nests one extension on top of an inner hint handler. The
// chain is composed by explicit nesting at construction time, keeping its
// exact shape visible to the compiler.
type ExtendedRuntime struct {
	Extension Extension
	Inner     vm.HintHandler
}

func (r *ExtendedRuntime) ExecuteHint(machine *vm.VirtualMachine, hint *casm.Hint) error {
	outcome, err := r.Extension.Handle(machine, hint)
	if err != nil {
		return err
	}
	if outcome == Handled {
		return nil
	}
	return r.Inner.ExecuteHint(machine, hint)
}

// StarknetRuntime is the innermost layer, servicing genuine Starknet
// syscalls through the engine's syscall handler. Hints that reach this
// layer without being recognized are a VM-level execution error, not a
// test-framework condition.
type StarknetRuntime struct {
	Handler *execution.SyscallHandler
}

func (r *StarknetRuntime) ExecuteHint(machine *vm.VirtualMachine, hint *casm.Hint) error {
	if hint.Kind == casm.HintSystemCall {
		return r.Handler.Execute(machine, hint)
	}
	return fmt.Errorf("%w: %v", vm.ErrUnknownHint, hint)
}
