// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"github.com/starkforge/starkforge/felt"
)

//go:generate mockgen -source reader.go -destination reader_mock.go -package state

// Address is a Starknet contract address.
type Address felt.Felt

func (a Address) String() string {
	return felt.Felt(a).String()
}

func (a Address) MarshalText() ([]byte, error) {
	return felt.Felt(a).MarshalText()
}

func (a *Address) UnmarshalText(data []byte) error {
	return (*felt.Felt)(a).UnmarshalText(data)
}

// StorageKey is the key of a single contract storage slot.
type StorageKey felt.Felt

func (k StorageKey) String() string {
	return felt.Felt(k).String()
}

// ClassHash identifies a declared contract class.
type ClassHash felt.Felt

func (c ClassHash) String() string {
	return felt.Felt(c).String()
}

func (c ClassHash) MarshalText() ([]byte, error) {
	return felt.Felt(c).MarshalText()
}

func (c *ClassHash) UnmarshalText(data []byte) error {
	return (*felt.Felt)(c).UnmarshalText(data)
}

// BlockInfo is the block snapshot an execution context is derived from.
type BlockInfo struct {
	BlockNumber      uint64  `json:"block_number"`
	Timestamp        uint64  `json:"timestamp"`
	SequencerAddress Address `json:"sequencer_address"`
}

// Reader provides read access to contract classes, nonces, and storage
// slots. Reads are synchronous from the VM's perspective; implementations
// backed by a network surface failures as recoverable errors.
type Reader interface {
	ClassHashAt(address Address) (ClassHash, error)
	NonceAt(address Address) (felt.Felt, error)
	StorageAt(address Address, key StorageKey) (felt.Felt, error)
	BlockInfo() (BlockInfo, error)
}

// The fixed identity under which test code executes, and the defaults of
// the local testing state.
var (
	TestAddress   = Address(felt.New(0x172498723497, 0x3219347210837402))
	TestClassHash = ClassHash(felt.New(0x117))

	defaultSequencer = Address(felt.New(0x69))
)

const defaultBlockNumber = 2000

// StorageEntry addresses one storage slot of one contract.
type StorageEntry struct {
	Address Address
	Key     StorageKey
}

// DictReader is the in-memory default dataset used by test runs without a
// fork configuration. It is seeded with the fixed test contract; all other
// reads miss and yield zero values.
type DictReader struct {
	ClassHashes map[Address]ClassHash
	Nonces      map[Address]felt.Felt
	Storage     map[StorageEntry]felt.Felt
	Block       BlockInfo
}

// BuildTestingState creates the default dataset every run starts from.
func BuildTestingState() *DictReader {
	return &DictReader{
		ClassHashes: map[Address]ClassHash{
			TestAddress: TestClassHash,
		},
		Nonces:  map[Address]felt.Felt{},
		Storage: map[StorageEntry]felt.Felt{},
		Block: BlockInfo{
			BlockNumber:      defaultBlockNumber,
			Timestamp:        0,
			SequencerAddress: defaultSequencer,
		},
	}
}

func (r *DictReader) ClassHashAt(address Address) (ClassHash, error) {
	return r.ClassHashes[address], nil
}

func (r *DictReader) NonceAt(address Address) (felt.Felt, error) {
	return r.Nonces[address], nil
}

func (r *DictReader) StorageAt(address Address, key StorageKey) (felt.Felt, error) {
	return r.Storage[StorageEntry{address, key}], nil
}

func (r *DictReader) BlockInfo() (BlockInfo, error) {
	return r.Block, nil
}

// ExtendedReader serves reads from the local dataset first and falls back
// to a pinned network fork for entries the local dataset does not hold. A
// nil fork reader makes it a purely local reader.
type ExtendedReader struct {
	Dict *DictReader
	Fork *ForkReader
}

func (r *ExtendedReader) ClassHashAt(address Address) (ClassHash, error) {
	if hash, found := r.Dict.ClassHashes[address]; found {
		return hash, nil
	}
	if r.Fork == nil {
		return ClassHash{}, nil
	}
	return r.Fork.ClassHashAt(address)
}

func (r *ExtendedReader) NonceAt(address Address) (felt.Felt, error) {
	if nonce, found := r.Dict.Nonces[address]; found {
		return nonce, nil
	}
	if r.Fork == nil {
		return felt.Felt{}, nil
	}
	return r.Fork.NonceAt(address)
}

func (r *ExtendedReader) StorageAt(address Address, key StorageKey) (felt.Felt, error) {
	if value, found := r.Dict.Storage[StorageEntry{address, key}]; found {
		return value, nil
	}
	if r.Fork == nil {
		return felt.Felt{}, nil
	}
	return r.Fork.StorageAt(address, key)
}

// BlockInfo returns the forked block snapshot when a fork is configured,
// the local default otherwise.
func (r *ExtendedReader) BlockInfo() (BlockInfo, error) {
	if r.Fork != nil {
		return r.Fork.BlockInfo()
	}
	return r.Dict.BlockInfo()
}
