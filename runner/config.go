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
	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/state"
)

// ForkConfig pins a test case to a remote network state at a fixed block.
type ForkConfig struct {
	URL         string `json:"url"`
	BlockNumber uint64 `json:"block_number"`
}

// TestCaseRunnable identifies one schedulable test case. Immutable once
// scheduled; owned by the scheduler for the lifetime of one run.
type TestCaseRunnable struct {
	Name string `json:"name"`

	// AvailableGas is an explicit gas budget declared on the test case.
	// The engine rejects such cases before any VM work begins.
	AvailableGas *uint64 `json:"available_gas,omitempty"`

	Ignored bool        `json:"ignored,omitempty"`
	Fork    *ForkConfig `json:"fork,omitempty"`
}

// TestEntry pairs a runnable case with the entry point metadata of its
// test function.
type TestEntry struct {
	Case    TestCaseRunnable `json:"case"`
	Details casm.TestDetails `json:"details"`
}

// RunnerConfig is the run configuration shared read-only by all workers.
type RunnerConfig struct {
	// WorkspaceRoot namespaces the on-disk fork cache.
	WorkspaceRoot string

	// Jobs is the size of the worker pool. Zero selects one worker per CPU.
	Jobs int

	// ExitFirst cancels all outstanding work after the first failure.
	ExitFirst bool

	// FuzzerRuns is the number of argument vectors generated for each test
	// case with parameters.
	FuzzerRuns int

	// FuzzerSeed makes fuzzed argument generation reproducible.
	FuzzerSeed uint64
}

// RunnerParams carries the data injected into every run's extension chain.
type RunnerParams struct {
	EnvironmentVariables map[string]string
	DeclaredContracts    map[string]state.ClassHash
}
