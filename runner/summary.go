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
	"fmt"

	"github.com/starkforge/starkforge/felt"
)

// Status is the terminal outcome of one test run.
type Status int

const (
	Passed Status = iota
	Failed
	Skipped
	Ignored
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Ignored:
		return "ignored"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// TestCaseSummary is the durable artifact of one run. For fuzz trials the
// argument tuple that produced the outcome is carried along. Immutable
// once produced.
type TestCaseSummary struct {
	Name        string
	Status      Status
	Message     string
	Arguments   []felt.Felt
	ReturnValue []felt.Felt
	GasUsed     uint64
}

func (s *TestCaseSummary) String() string {
	switch s.Status {
	case Passed:
		return fmt.Sprintf("[PASS] %s (gas: %d)", s.Name, s.GasUsed)
	case Failed:
		if len(s.Arguments) > 0 {
			return fmt.Sprintf("[FAIL] %s %v: %s", s.Name, s.Arguments, s.Message)
		}
		return fmt.Sprintf("[FAIL] %s: %s", s.Name, s.Message)
	case Skipped:
		return fmt.Sprintf("[SKIP] %s", s.Name)
	case Ignored:
		return fmt.Sprintf("[IGNORE] %s", s.Name)
	default:
		return fmt.Sprintf("[???] %s", s.Name)
	}
}

// extractSummary translates a raw run result into the typed terminal
// outcome reported to the user.
func extractSummary(testCase *TestCaseRunnable, args []felt.Felt, result *RunResult) TestCaseSummary {
	summary := TestCaseSummary{
		Name:      testCase.Name,
		Arguments: args,
		GasUsed:   result.GasUsed,
	}
	if result.Passed {
		summary.Status = Passed
		summary.ReturnValue = result.ReturnValue
	} else {
		summary.Status = Failed
		summary.Message = result.Message
	}
	return summary
}
