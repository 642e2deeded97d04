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
	"fmt"

	"github.com/starkforge/starkforge/state"
)

// Mode selects the fee semantics of an execution context. Test runs always
// execute without charging fees.
type Mode int

const (
	// ModeExecute runs transactions without fee enforcement.
	ModeExecute Mode = iota
)

func (m Mode) String() string {
	switch m {
	case ModeExecute:
		return "execute"
	default:
		return fmt.Sprintf("invalid(%d)", int(m))
	}
}

// maxSteps bounds a single run. The limit matches the sequencer default
// for invoke transactions.
const maxSteps = 10_000_000

// BlockContext is the block-level portion of an execution context.
type BlockContext struct {
	Info     state.BlockInfo
	MaxSteps int
}

// TransactionContext is the account-transaction portion of an execution
// context. Test runs use a zero max fee since no fees are charged.
type TransactionContext struct {
	MaxFee  uint64
	Version uint64
}

// Context is the full execution context of one test run.
type Context struct {
	Block BlockContext
	Tx    TransactionContext
	Mode  Mode
}

// NewContext derives an execution context from a block snapshot. A failure
// here is a fatal setup error of the engine, not a test failure.
func NewContext(info state.BlockInfo) (*Context, error) {
	if info.SequencerAddress == (state.Address{}) {
		return nil, fmt.Errorf("invalid block info: sequencer address is zero")
	}
	if info.BlockNumber == 0 {
		return nil, fmt.Errorf("invalid block info: block number is zero")
	}
	return &Context{
		Block: BlockContext{Info: info, MaxSteps: maxSteps},
		Tx:    TransactionContext{MaxFee: 0, Version: 1},
		Mode:  ModeExecute,
	}, nil
}
