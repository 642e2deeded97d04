// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"runtime"

	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/runner"
	"github.com/starkforge/starkforge/state"
	"github.com/urfave/cli/v2"
)

var RunCmd = cli.Command{
	Action:    doRun,
	Name:      "run",
	Usage:     "Run the test cases of a compiled test manifest",
	ArgsUsage: "<manifest.json>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "filter",
			Usage: "run only test cases whose name matches the given regex",
			Value: ".*",
		},
		&cli.IntFlag{
			Name:  "jobs",
			Usage: "number of jobs run simultaneously",
			Value: runtime.NumCPU(),
		},
		&cli.IntFlag{
			Name:  "fuzzer-runs",
			Usage: "number of argument vectors generated per parameterized test",
			Value: 256,
		},
		&cli.Uint64Flag{
			Name:  "fuzzer-seed",
			Usage: "seed for the fuzzed argument generator",
		},
		&cli.BoolFlag{
			Name:  "exit-first",
			Usage: "cancel all outstanding tests after the first failure",
		},
		&cli.StringFlag{
			Name:  "workspace-root",
			Usage: "directory holding the fork cache",
			Value: ".",
		},
	},
}

// manifest is the compiled output of the collection stage: one program
// with the test cases and entry point metadata derived from it.
type manifest struct {
	Program   casm.Program               `json:"program"`
	Tests     []runner.TestEntry         `json:"tests"`
	Env       map[string]string          `json:"env,omitempty"`
	Contracts map[string]state.ClassHash `json:"contracts,omitempty"`
}

func doRun(context *cli.Context) error {
	if context.Args().Len() < 1 {
		return fmt.Errorf("missing manifest file argument")
	}
	data, err := os.ReadFile(context.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to read the manifest: %w", err)
	}
	var input manifest
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to parse the manifest: %w", err)
	}

	filter, err := regexp.Compile(context.String("filter"))
	if err != nil {
		return err
	}
	entries := make([]runner.TestEntry, 0, len(input.Tests))
	for _, entry := range input.Tests {
		if filter.MatchString(entry.Case.Name) {
			entries = append(entries, entry)
		}
	}

	config := &runner.RunnerConfig{
		WorkspaceRoot: context.String("workspace-root"),
		Jobs:          context.Int("jobs"),
		ExitFirst:     context.Bool("exit-first"),
		FuzzerRuns:    context.Int("fuzzer-runs"),
		FuzzerSeed:    context.Uint64("fuzzer-seed"),
	}
	params := &runner.RunnerParams{
		EnvironmentVariables: input.Env,
		DeclaredContracts:    input.Contracts,
	}

	scheduler := runner.NewScheduler(config, params)
	scheduler.Progress = os.Stdout
	summaries, err := scheduler.Run(&input.Program, entries)
	if err != nil {
		return fmt.Errorf("the test session aborted: %w", err)
	}

	counts := make(map[runner.Status]int)
	for i := range summaries {
		fmt.Println(summaries[i].String())
		counts[summaries[i].Status]++
	}
	fmt.Printf("\n%d passed, %d failed, %d skipped, %d ignored\n",
		counts[runner.Passed], counts[runner.Failed], counts[runner.Skipped], counts[runner.Ignored])

	if counts[runner.Failed] > 0 {
		return fmt.Errorf("%d test cases failed", counts[runner.Failed])
	}
	return nil
}
