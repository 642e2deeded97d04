// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package runner executes compiled test programs and reduces the raw VM
// results into pass/fail/skip outcomes with gas accounting. A single run is
// a linear pipeline; the scheduler wraps it with a worker pool and
// cooperative cancellation.
package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/execution"
	"github.com/starkforge/starkforge/felt"
	"github.com/starkforge/starkforge/runtime"
	"github.com/starkforge/starkforge/state"
	"github.com/starkforge/starkforge/vm"
)

// initialGas is the gas budget injected into the entry code of every run.
// Tests execute without fee enforcement, so the budget only needs to be
// large enough to never run out.
const initialGas uint64 = 1 << 62

// gasOverrideDiagnostic is the fixed message attached to test cases
// declaring an explicit gas budget, which this engine does not support.
const gasOverrideDiagnostic = "the available_gas attribute is not supported"

// RunResult is the raw outcome of one executor invocation, before it is
// folded into a reported summary.
type RunResult struct {
	Passed      bool
	Message     string
	ReturnValue []felt.Felt
	GasUsed     uint64
}

// RunTestCase drives one test case through the full execution pipeline.
// The returned error is reserved for fatal engine defects; every
// test-level condition, including VM faults and fork failures, is reported
// through the result instead.
func RunTestCase(
	testCase *TestCaseRunnable,
	program *casm.Program,
	details *casm.TestDetails,
	args []felt.Felt,
	config *RunnerConfig,
	params *RunnerParams,
) (*RunResult, error) {
	if testCase.AvailableGas != nil {
		return &RunResult{Message: gasOverrideDiagnostic}, nil
	}

	entryOffset := details.EntryPointOffset
	if entryOffset < 0 || entryOffset >= len(program.Debug.StatementInfo) {
		return nil, fmt.Errorf("internal error: entry point %d of test %q is outside the debug table", entryOffset, testCase.Name)
	}
	codeOffset := program.Debug.StatementInfo[entryOffset].CodeOffset

	entryCode, builtins, err := casm.CreateEntryCode(details, args, initialGas, codeOffset, program.CodeSize())
	if err != nil {
		return nil, fmt.Errorf("internal error: %w", err)
	}

	stream := make([]casm.Instruction, 0, len(entryCode)+len(program.Instructions)+1)
	stream = append(stream, entryCode...)
	stream = append(stream, program.Instructions...)
	stream = append(stream, casm.CreateCodeFooter()...)
	hints := casm.BuildHintIndex(stream)

	reader := &state.ExtendedReader{Dict: state.BuildTestingState()}
	if testCase.Fork != nil {
		fork, err := state.NewForkReader(testCase.Fork.URL, testCase.Fork.BlockNumber, config.WorkspaceRoot)
		if err != nil {
			return &RunResult{Message: fmt.Sprintf("failed to set up the fork: %v", err)}, nil
		}
		reader.Fork = fork
	}
	info, err := reader.BlockInfo()
	if err != nil {
		return &RunResult{Message: fmt.Sprintf("failed to read the forked block: %v", err)}, nil
	}
	context, err := execution.NewContext(info)
	if err != nil {
		return nil, fmt.Errorf("internal error: %w", err)
	}

	cached := state.NewCachedState(reader)
	handler := execution.NewSyscallHandler(cached, context)
	stack := runtime.NewStack(handler, context, params.EnvironmentVariables, params.DeclaredContracts, nil)

	machine, err := vm.New(stream, hints)
	if err != nil {
		return nil, fmt.Errorf("internal error: %w", err)
	}
	machine.RegisterBuiltins(builtins)

	if err := machine.Run(stack.Top); err != nil {
		var runError *vm.RunError
		if errors.As(err, &runError) {
			return &RunResult{Message: runError.Error()}, nil
		}
		return nil, fmt.Errorf("internal error: %w", err)
	}

	resources, err := finalize(machine, handler, len(args))
	if err != nil {
		return nil, err
	}
	gasUsed := execution.CalculateUsedGas(context, cached.Diff(), resources)
	return extractResult(machine, details, gasUsed)
}

// finalize marks the code and argument regions as accessed and folds the
// syscall handler's usage into the machine's counters. The handler's own
// surcharges and the usage of nested calls are tracked separately and
// added exactly once each.
func finalize(machine *vm.VirtualMachine, handler *execution.SyscallHandler, numArgs int) (vm.Resources, error) {
	base, found := machine.ProgramBase()
	if !found {
		return vm.Resources{}, fmt.Errorf("internal error: program base is missing after a completed run")
	}
	machine.Memory().MarkAccessed(base, machine.CodeSize()+casm.ExtraDataSize)

	initialFp, found := machine.InitialFp()
	if !found {
		return vm.Resources{}, fmt.Errorf("internal error: no call frame was established by the entry code")
	}
	// The gas cell and the argument cells sit below the first call frame.
	argsBase := vm.Relocatable{Segment: machine.ExecutionSegment(), Offset: initialFp - 2 - (numArgs + 1)}
	machine.Memory().MarkAccessed(argsBase, numArgs+1)
	handler.MarkSegmentsAccessed(machine)

	resources := machine.UsedResources().FilterUnusedBuiltins()
	resources.Add(handler.Resources())
	resources.Add(handler.InnerCallResources())
	return resources, nil
}

// extractResult decodes the return convention against the final register
// and memory image. The return block sits directly below the final
// allocation pointer; its first word tags success or panic.
func extractResult(machine *vm.VirtualMachine, details *casm.TestDetails, gasUsed uint64) (*RunResult, error) {
	size := details.ReturnSize()
	if size == 0 {
		return &RunResult{Passed: true, GasUsed: gasUsed}, nil
	}

	values := make([]felt.Felt, size)
	for i := range values {
		value, err := machine.ValueAt(machine.Ap() - size + i)
		if err != nil {
			return &RunResult{
				Message: fmt.Sprintf("failed to decode the return value: %v", err),
				GasUsed: gasUsed,
			}, nil
		}
		values[i] = value
	}

	if values[0].IsZero() {
		return &RunResult{Passed: true, ReturnValue: values[1:], GasUsed: gasUsed}, nil
	}
	return &RunResult{Message: formatPanic(values[1:]), GasUsed: gasUsed}, nil
}

func formatPanic(payload []felt.Felt) string {
	parts := make([]string, len(payload))
	for i, value := range payload {
		parts[i] = value.ToShortString()
	}
	return fmt.Sprintf("test panicked with [%s]", strings.Join(parts, ", "))
}
