// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package runner

import (
	"reflect"
	"strings"
	"testing"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/execution"
	"github.com/starkforge/starkforge/felt"
)

// trivialProgram is a test function that immediately returns with no
// return values.
func trivialProgram() (*casm.Program, *casm.TestDetails) {
	program := &casm.Program{
		Instructions: []casm.Instruction{{Op: casm.OpRet}},
		Debug:        casm.DebugInfo{StatementInfo: []casm.StatementInfo{{CodeOffset: 0}}},
	}
	return program, &casm.TestDetails{EntryPointOffset: 0}
}

// returningProgram is a test function producing the given tagged return
// block: a success/panic tag word followed by one payload word.
func returningProgram(tag, payload felt.Felt) (*casm.Program, *casm.TestDetails) {
	program := &casm.Program{
		Instructions: []casm.Instruction{
			{Op: casm.OpAssertEq, Imm: &tag},
			{Op: casm.OpAssertEq, Imm: &payload},
			{Op: casm.OpRet},
		},
		Debug: casm.DebugInfo{StatementInfo: []casm.StatementInfo{{CodeOffset: 0}}},
	}
	details := &casm.TestDetails{
		EntryPointOffset: 0,
		ReturnTypes:      []casm.TypeInfo{{ID: "core::PanicResult", Size: 2}},
	}
	return program, details
}

// storageProgram is a test function performing one storage-write syscall
// through the full extension chain.
func storageProgram() (*casm.Program, *casm.TestDetails) {
	key := felt.New(7)
	value := felt.New(99)
	program := &casm.Program{
		Instructions: []casm.Instruction{
			{Op: casm.OpAssertEq, Imm: &key},
			{Op: casm.OpAssertEq, Imm: &value},
			{Op: casm.OpRet, Hints: []casm.Hint{{
				Kind:     casm.HintSystemCall,
				Selector: execution.SyscallStorageWrite,
				Inputs:   []casm.CellRef{{Reg: casm.AP, Offset: -2}, {Reg: casm.AP, Offset: -1}},
			}}},
		},
		Debug: casm.DebugInfo{StatementInfo: []casm.StatementInfo{{CodeOffset: 0}}},
	}
	return program, &casm.TestDetails{EntryPointOffset: 0}
}

func defaultConfig() *RunnerConfig {
	return &RunnerConfig{Jobs: 1, FuzzerRuns: 1, FuzzerSeed: 42}
}

func runOne(t *testing.T, program *casm.Program, details *casm.TestDetails, args []felt.Felt) *RunResult {
	t.Helper()
	testCase := &TestCaseRunnable{Name: "case"}
	result, err := RunTestCase(testCase, program, details, args, defaultConfig(), &RunnerParams{})
	if err != nil {
		t.Fatalf("the run aborted fatally: %v", err)
	}
	return result
}

func TestRunTestCase_TrivialProgramPasses(t *testing.T) {
	program, details := trivialProgram()
	result := runOne(t, program, details, nil)

	if !result.Passed {
		t.Fatalf("expected the run to pass, got %q", result.Message)
	}
	if len(result.ReturnValue) != 0 {
		t.Errorf("expected no return value, got %v", result.ReturnValue)
	}
	if result.GasUsed == 0 {
		t.Errorf("expected a positive gas total")
	}
}

func TestRunTestCase_IsDeterministic(t *testing.T) {
	program, details := storageProgram()

	first := runOne(t, program, details, nil)
	second := runOne(t, program, details, nil)

	if first.Passed != second.Passed || first.Message != second.Message {
		t.Errorf("outcomes differ between identical runs")
	}
	if first.GasUsed != second.GasUsed {
		t.Errorf("gas totals differ between identical runs: %d != %d", first.GasUsed, second.GasUsed)
	}
	if !reflect.DeepEqual(first.ReturnValue, second.ReturnValue) {
		t.Errorf("return values differ between identical runs")
	}
}

func TestRunTestCase_GasBudgetAttributeIsRejected(t *testing.T) {
	program, details := trivialProgram()
	budget := uint64(1000)
	testCase := &TestCaseRunnable{Name: "case", AvailableGas: &budget}

	result, err := RunTestCase(testCase, program, details, nil, defaultConfig(), &RunnerParams{})
	if err != nil {
		t.Fatalf("the run aborted fatally: %v", err)
	}
	if result.Passed {
		t.Fatalf("expected the case to be rejected")
	}
	if result.Message != gasOverrideDiagnostic {
		t.Errorf("expected the fixed diagnostic, got %q", result.Message)
	}
}

func TestRunTestCase_SuccessfulReturnValueIsDecoded(t *testing.T) {
	program, details := returningProgram(felt.New(0), felt.New(42))
	result := runOne(t, program, details, nil)

	if !result.Passed {
		t.Fatalf("expected the run to pass, got %q", result.Message)
	}
	if want := []felt.Felt{felt.New(42)}; !reflect.DeepEqual(result.ReturnValue, want) {
		t.Errorf("expected return value %v, got %v", want, result.ReturnValue)
	}
}

func TestRunTestCase_PanicPayloadIsDecoded(t *testing.T) {
	payload, err := felt.FromString("call failed")
	if err != nil {
		t.Fatalf("failed to encode the payload: %v", err)
	}
	program, details := returningProgram(felt.New(1), payload)
	result := runOne(t, program, details, nil)

	if result.Passed {
		t.Fatalf("expected the run to fail")
	}
	if !strings.Contains(result.Message, "call failed") {
		t.Errorf("expected the decoded panic string in %q", result.Message)
	}
}

func TestRunTestCase_SyscallsRaiseTheGasTotal(t *testing.T) {
	trivial, trivialDetails := trivialProgram()
	writing, writingDetails := storageProgram()

	baseline := runOne(t, trivial, trivialDetails, nil)
	withWrite := runOne(t, writing, writingDetails, nil)

	if !withWrite.Passed {
		t.Fatalf("expected the writing run to pass, got %q", withWrite.Message)
	}
	if withWrite.GasUsed <= baseline.GasUsed {
		t.Errorf("expected the storage write to cost gas: %d <= %d", withWrite.GasUsed, baseline.GasUsed)
	}
}

func TestRunTestCase_VMFaultYieldsFailure(t *testing.T) {
	target := felt.New(9999)
	program := &casm.Program{
		Instructions: []casm.Instruction{{Op: casm.OpJump, Imm: &target}},
		Debug:        casm.DebugInfo{StatementInfo: []casm.StatementInfo{{CodeOffset: 0}}},
	}
	result := runOne(t, program, &casm.TestDetails{EntryPointOffset: 0}, nil)

	if result.Passed {
		t.Fatalf("expected the run to fail")
	}
	if result.Message == "" {
		t.Errorf("expected a diagnostic message")
	}
}

func TestRunTestCase_EntryPointOutsideDebugTableIsFatal(t *testing.T) {
	program, _ := trivialProgram()
	details := &casm.TestDetails{EntryPointOffset: 17}

	_, err := RunTestCase(&TestCaseRunnable{Name: "case"}, program, details, nil, defaultConfig(), &RunnerParams{})
	if err == nil {
		t.Errorf("expected a fatal error for a corrupted entry point")
	}
}

func TestScheduler_CollectsAllOutcomes(t *testing.T) {
	program, details := trivialProgram()
	entries := []TestEntry{
		{Case: TestCaseRunnable{Name: "a"}, Details: *details},
		{Case: TestCaseRunnable{Name: "b", Ignored: true}, Details: *details},
		{Case: TestCaseRunnable{Name: "c"}, Details: *details},
	}

	scheduler := NewScheduler(&RunnerConfig{Jobs: 2, FuzzerRuns: 1}, &RunnerParams{})
	summaries, err := scheduler.Run(program, entries)
	if err != nil {
		t.Fatalf("the session aborted fatally: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	byName := make(map[string]Status)
	for _, summary := range summaries {
		byName[summary.Name] = summary.Status
	}
	want := map[string]Status{"a": Passed, "b": Ignored, "c": Passed}
	if !reflect.DeepEqual(byName, want) {
		t.Errorf("expected outcomes %v, got %v", want, byName)
	}
}

func TestScheduler_CancellationBeforeDispatchSkipsAllWork(t *testing.T) {
	program, details := trivialProgram()
	entries := []TestEntry{
		{Case: TestCaseRunnable{Name: "a"}, Details: *details},
		{Case: TestCaseRunnable{Name: "b"}, Details: *details},
	}

	scheduler := NewScheduler(&RunnerConfig{Jobs: 1}, &RunnerParams{})
	scheduler.Cancel()
	summaries, err := scheduler.Run(program, entries)
	if err != nil {
		t.Fatalf("the session aborted fatally: %v", err)
	}
	for _, summary := range summaries {
		if summary.Status != Skipped {
			t.Errorf("expected %q to be skipped, got %v", summary.Name, summary.Status)
		}
	}
}

func TestScheduler_ExitFirstKeepsTheFailureAndSkipsTheRest(t *testing.T) {
	payload, err := felt.FromString("boom")
	if err != nil {
		t.Fatalf("failed to encode the payload: %v", err)
	}
	program, details := returningProgram(felt.New(1), payload)

	entries := []TestEntry{
		{Case: TestCaseRunnable{Name: "fails"}, Details: *details},
		{Case: TestCaseRunnable{Name: "never-runs-1"}, Details: *details},
		{Case: TestCaseRunnable{Name: "never-runs-2"}, Details: *details},
	}

	scheduler := NewScheduler(&RunnerConfig{Jobs: 1, ExitFirst: true}, &RunnerParams{})
	summaries, err := scheduler.Run(program, entries)
	if err != nil {
		t.Fatalf("the session aborted fatally: %v", err)
	}

	// The failing unit cancels only after its own outcome is produced; the
	// cancellation must not retroactively overwrite it.
	if summaries[0].Status != Failed {
		t.Errorf("expected the first case to stay failed, got %v", summaries[0].Status)
	}
	for _, summary := range summaries[1:] {
		if summary.Status != Skipped {
			t.Errorf("expected %q to be skipped, got %v", summary.Name, summary.Status)
		}
	}
}

func TestScheduler_FuzzTrialsAreReproducibleAndCarryArguments(t *testing.T) {
	program := &casm.Program{
		Instructions: []casm.Instruction{{Op: casm.OpRet}},
		Debug:        casm.DebugInfo{StatementInfo: []casm.StatementInfo{{CodeOffset: 0}}},
	}
	details := casm.TestDetails{
		EntryPointOffset: 0,
		ParameterTypes:   []casm.TypeInfo{{ID: "core::felt252", Size: 1}},
	}

	run := func() []TestCaseSummary {
		scheduler := NewScheduler(&RunnerConfig{Jobs: 2, FuzzerRuns: 3, FuzzerSeed: 7}, &RunnerParams{})
		summaries, err := scheduler.Run(program, []TestEntry{{Case: TestCaseRunnable{Name: "fuzzed"}, Details: details}})
		if err != nil {
			t.Fatalf("the session aborted fatally: %v", err)
		}
		return summaries
	}

	first := run()
	second := run()
	if len(first) != 3 {
		t.Fatalf("expected one summary per trial, got %d", len(first))
	}
	for i := range first {
		if first[i].Status != Passed {
			t.Errorf("trial %d did not pass: %q", i, first[i].Message)
		}
		if len(first[i].Arguments) != 1 {
			t.Errorf("trial %d is missing its argument tuple", i)
		}
		if !reflect.DeepEqual(first[i].Arguments, second[i].Arguments) {
			t.Errorf("trial %d arguments differ between identically seeded sessions", i)
		}
	}
}

func TestSummary_FormatsByStatus(t *testing.T) {
	tests := map[string]struct {
		summary TestCaseSummary
		want    string
	}{
		"passed":  {TestCaseSummary{Name: "t", Status: Passed, GasUsed: 7}, "[PASS] t (gas: 7)"},
		"failed":  {TestCaseSummary{Name: "t", Status: Failed, Message: "boom"}, "[FAIL] t: boom"},
		"skipped": {TestCaseSummary{Name: "t", Status: Skipped}, "[SKIP] t"},
		"ignored": {TestCaseSummary{Name: "t", Status: Ignored}, "[IGNORE] t"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := test.summary.String(); got != test.want {
				t.Errorf("expected %q, got %q", test.want, got)
			}
		})
	}
}
