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

import (
	"fmt"

	"github.com/starkforge/starkforge/felt"
)

// Relocatable is a segmented memory address.
type Relocatable struct {
	Segment int
	Offset  int
}

func (r Relocatable) String() string {
	return fmt.Sprintf("%d:%d", r.Segment, r.Offset)
}

// Add returns the address shifted by the given number of cells.
func (r Relocatable) Add(offset int) Relocatable {
	return Relocatable{Segment: r.Segment, Offset: r.Offset + offset}
}

type cell struct {
	value    felt.Felt
	known    bool
	accessed bool
}

// Memory is the segmented, write-once memory image of one VM run. Cells
// track whether they were ever accessed; allocated cells that remain
// unaccessed at the end of a run are counted as memory holes for resource
// accounting.
type Memory struct {
	segments [][]cell
}

func NewMemory() *Memory {
	return &Memory{}
}

// AddSegment allocates a fresh empty segment and returns its index.
func (m *Memory) AddSegment() int {
	m.segments = append(m.segments, nil)
	return len(m.segments) - 1
}

func (m *Memory) segmentAt(r Relocatable) ([]cell, error) {
	if r.Segment < 0 || r.Segment >= len(m.segments) || r.Offset < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMemoryAccess, r)
	}
	return m.segments[r.Segment], nil
}

// Write assigns a value to the given cell, growing the owning segment as
// needed. Cells are write-once: re-assigning a different value fails.
func (m *Memory) Write(r Relocatable, value felt.Felt) error {
	segment, err := m.segmentAt(r)
	if err != nil {
		return err
	}
	for len(segment) <= r.Offset {
		segment = append(segment, cell{})
	}
	m.segments[r.Segment] = segment

	target := &segment[r.Offset]
	if target.known && target.value != value {
		return fmt.Errorf("%w at %v: %v != %v", ErrInconsistentMemory, r, target.value, value)
	}
	target.value = value
	target.known = true
	return nil
}

// Read returns the value of the given cell and marks it as accessed.
// Reading an unknown cell is an invalid memory access.
func (m *Memory) Read(r Relocatable) (felt.Felt, error) {
	segment, err := m.segmentAt(r)
	if err != nil {
		return felt.Felt{}, err
	}
	if r.Offset >= len(segment) || !segment[r.Offset].known {
		return felt.Felt{}, fmt.Errorf("%w: %v", ErrInvalidMemoryAccess, r)
	}
	segment[r.Offset].accessed = true
	return segment[r.Offset].value, nil
}

// MarkAccessed flags the given address range as accessed without reading
// it. The VM's consistency bookkeeping requires code and argument regions
// to be marked this way during finalization.
func (m *Memory) MarkAccessed(start Relocatable, length int) {
	if start.Segment < 0 || start.Segment >= len(m.segments) {
		return
	}
	segment := m.segments[start.Segment]
	for i := 0; i < length; i++ {
		offset := start.Offset + i
		if offset < 0 || offset >= len(segment) {
			continue
		}
		segment[offset].accessed = true
	}
}

// CountHoles returns the number of allocated cells that were never
// accessed.
func (m *Memory) CountHoles() int {
	holes := 0
	for _, segment := range m.segments {
		for i := range segment {
			if !segment[i].accessed {
				holes++
			}
		}
	}
	return holes
}

// SegmentSize returns the current length of the given segment.
func (m *Memory) SegmentSize(segment int) int {
	if segment < 0 || segment >= len(m.segments) {
		return 0
	}
	return len(m.segments[segment])
}
