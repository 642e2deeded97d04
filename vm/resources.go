// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import "golang.org/x/exp/maps"

// Builtin names tracked by the resource counters.
const (
	BuiltinRangeCheck = "range_check"
	BuiltinGas        = "gas"
	BuiltinPedersen   = "pedersen"
	BuiltinEcOp       = "ec_op"
)

// Resources is the resource usage accumulated over one run: generic VM
// steps, memory holes, and per-builtin invocation counters. A fresh, zeroed
// counter is created for every run and passed by exclusive reference down
// the call chain; it is never shared between concurrent runs.
type Resources struct {
	Steps           int
	MemoryHoles     int
	BuiltinCounters map[string]int
}

// Clone returns an independent deep copy of the counters.
func (r *Resources) Clone() Resources {
	clone := Resources{Steps: r.Steps, MemoryHoles: r.MemoryHoles}
	if r.BuiltinCounters != nil {
		clone.BuiltinCounters = maps.Clone(r.BuiltinCounters)
	}
	return clone
}

// AddBuiltin increases the counter of the named builtin, creating it on
// first use.
func (r *Resources) AddBuiltin(name string, count int) {
	if r.BuiltinCounters == nil {
		r.BuiltinCounters = map[string]int{}
	}
	r.BuiltinCounters[name] += count
}

// Add folds the given usage into this counter.
func (r *Resources) Add(o Resources) {
	r.Steps += o.Steps
	r.MemoryHoles += o.MemoryHoles
	for name, count := range o.BuiltinCounters {
		r.AddBuiltin(name, count)
	}
}

// Sub removes the given usage from this counter, saturating at zero. It is
// used to discount resource usage already attributed to nested calls.
func (r *Resources) Sub(o Resources) {
	r.Steps = max(0, r.Steps-o.Steps)
	r.MemoryHoles = max(0, r.MemoryHoles-o.MemoryHoles)
	for name, count := range o.BuiltinCounters {
		if current, found := r.BuiltinCounters[name]; found {
			r.BuiltinCounters[name] = max(0, current-count)
		}
	}
}

// FilterUnusedBuiltins returns a copy of the counters with all zero-valued
// builtin entries removed. Builtins are registered with a zero counter at
// VM initialization; entries still at zero after a run carry no cost and
// must not show up in the accounting.
func (r Resources) FilterUnusedBuiltins() Resources {
	result := r.Clone()
	for name, count := range result.BuiltinCounters {
		if count == 0 {
			delete(result.BuiltinCounters, name)
		}
	}
	return result
}
