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
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsnet/golib/unitconv"
	"github.com/starkforge/starkforge/casm"
	"github.com/starkforge/starkforge/felt"
	"pgregory.net/rand"
)

// Scheduler runs test cases as independently cancellable units of work on
// a fixed worker pool. Cancellation is cooperative: the signal is checked
// immediately before a unit's VM run starts and again immediately after it
// completes, never during, so cancellation latency is bounded by at most
// one full run.
type Scheduler struct {
	config *RunnerConfig
	params *RunnerParams

	// Progress receives periodic throughput reports. Nil disables them.
	Progress io.Writer

	cancel     chan struct{}
	cancelOnce sync.Once
}

func NewScheduler(config *RunnerConfig, params *RunnerParams) *Scheduler {
	return &Scheduler{
		config: config,
		params: params,
		cancel: make(chan struct{}),
	}
}

// Cancel broadcasts the cancellation signal to all outstanding units. Safe
// to call multiple times and from any goroutine.
func (s *Scheduler) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *Scheduler) cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// unit is one schedulable run: a test case paired with one argument
// vector. Fuzzed cases produce one unit per trial.
type unit struct {
	index int
	entry *TestEntry
	args  []felt.Felt
}

// Run executes all entries of the given program and collects their
// summaries. Entries complete in no particular order relative to each
// other; the returned slice groups the summaries of one entry's trials
// together. The returned error is reserved for fatal engine defects and
// aborts the session.
func (s *Scheduler) Run(program *casm.Program, entries []TestEntry) ([]TestCaseSummary, error) {
	units, summaries := s.plan(entries)

	numJobs := s.config.Jobs
	if numJobs < 1 {
		numJobs = runtime.NumCPU()
	}

	var doneCounter atomic.Int64
	printerDone := s.startProgressPrinter(&doneCounter)

	var errorMutex sync.Mutex
	var fatalError error

	// Workers are started before the producing loop to avoid blocking on a
	// full channel with no one draining it.
	unitChannel := make(chan unit, 10*numJobs)
	var waitGroup sync.WaitGroup
	waitGroup.Add(numJobs)
	for i := 0; i < numJobs; i++ {
		go func() {
			defer waitGroup.Done()
			for u := range unitChannel {
				summaries[u.index] = s.runUnit(program, u, func(err error) {
					errorMutex.Lock()
					if fatalError == nil {
						fatalError = err
					}
					errorMutex.Unlock()
				})
				doneCounter.Add(1)
			}
		}()
	}

	for _, u := range units {
		unitChannel <- u
	}
	close(unitChannel)
	waitGroup.Wait()
	close(printerDone)

	errorMutex.Lock()
	defer errorMutex.Unlock()
	return summaries, fatalError
}

// plan expands the entries into schedulable units and pre-allocates the
// summary slots they report into. Ignored cases short-circuit and never
// become units; fuzzed cases produce one unit per trial.
func (s *Scheduler) plan(entries []TestEntry) ([]unit, []TestCaseSummary) {
	var units []unit
	var summaries []TestCaseSummary

	for i := range entries {
		entry := &entries[i]
		if entry.Case.Ignored {
			summaries = append(summaries, TestCaseSummary{Name: entry.Case.Name, Status: Ignored})
			continue
		}
		numParams := entry.Details.ParameterSize()
		if numParams == 0 {
			units = append(units, unit{index: len(summaries), entry: entry})
			summaries = append(summaries, TestCaseSummary{})
			continue
		}

		trials := s.config.FuzzerRuns
		if trials < 1 {
			trials = 1
		}
		// Arguments are re-seeded per entry to be reproducible regardless
		// of scheduling order.
		rnd := rand.New(s.config.FuzzerSeed + uint64(i))
		for trial := 0; trial < trials; trial++ {
			args := make([]felt.Felt, numParams)
			for j := range args {
				args[j] = felt.New(rnd.Uint64())
			}
			units = append(units, unit{index: len(summaries), entry: entry, args: args})
			summaries = append(summaries, TestCaseSummary{})
		}
	}
	return units, summaries
}

// runUnit is the body of one unit of work, bracketed by the two
// cancellation checkpoints.
func (s *Scheduler) runUnit(program *casm.Program, u unit, reportFatal func(error)) TestCaseSummary {
	if s.cancelled() {
		return TestCaseSummary{Name: u.entry.Case.Name, Status: Skipped}
	}

	result, err := RunTestCase(&u.entry.Case, program, &u.entry.Details, u.args, s.config, s.params)
	if err != nil {
		reportFatal(err)
		s.Cancel()
		return TestCaseSummary{Name: u.entry.Case.Name, Status: Skipped}
	}

	if s.cancelled() {
		return TestCaseSummary{Name: u.entry.Case.Name, Status: Skipped}
	}

	summary := extractSummary(&u.entry.Case, u.args, result)
	if summary.Status == Failed && s.config.ExitFirst {
		s.Cancel()
	}
	return summary
}

// startProgressPrinter reports throughput at a fixed tick until the
// returned channel is closed.
func (s *Scheduler) startProgressPrinter(counter *atomic.Int64) chan<- struct{} {
	done := make(chan struct{})
	if s.Progress == nil {
		return done
	}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		startTime := time.Now()
		lastTime := startTime
		lastCount := int64(0)
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				current := counter.Load()
				rate := float64(current-lastCount) / now.Sub(lastTime).Seconds()
				lastTime = now
				lastCount = current
				fmt.Fprintf(s.Progress, "[t=%4ds] - %s tests/s, %d done\n",
					int(now.Sub(startTime).Seconds()),
					unitconv.FormatPrefix(rate, unitconv.SI, 0), current,
				)
			}
		}
	}()
	return done
}
