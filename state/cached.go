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
	"fmt"

	"github.com/starkforge/starkforge/felt"
)

// Event is a Starknet event emitted during a run.
type Event struct {
	From Address
	Keys []felt.Felt
	Data []felt.Felt
}

// CachedState is the run-scoped mutable view over a Reader. Writes are
// buffered in an overlay; the resulting state diff feeds the gas
// accounting. A cached state is exclusively owned by one executor
// invocation.
type CachedState struct {
	reader Reader

	storage  map[StorageEntry]felt.Felt
	nonces   map[Address]felt.Felt
	classes  map[Address]ClassHash
	deployed []Address
	events   []Event
}

func NewCachedState(reader Reader) *CachedState {
	return &CachedState{
		reader:  reader,
		storage: map[StorageEntry]felt.Felt{},
		nonces:  map[Address]felt.Felt{},
		classes: map[Address]ClassHash{},
	}
}

func (s *CachedState) StorageAt(address Address, key StorageKey) (felt.Felt, error) {
	if value, found := s.storage[StorageEntry{address, key}]; found {
		return value, nil
	}
	value, err := s.reader.StorageAt(address, key)
	if err != nil {
		return felt.Felt{}, fmt.Errorf("failed to read storage slot %v of %v: %w", key, address, err)
	}
	return value, nil
}

func (s *CachedState) SetStorageAt(address Address, key StorageKey, value felt.Felt) {
	s.storage[StorageEntry{address, key}] = value
}

func (s *CachedState) NonceAt(address Address) (felt.Felt, error) {
	if nonce, found := s.nonces[address]; found {
		return nonce, nil
	}
	nonce, err := s.reader.NonceAt(address)
	if err != nil {
		return felt.Felt{}, fmt.Errorf("failed to read nonce of %v: %w", address, err)
	}
	return nonce, nil
}

// IncrementNonce advances the nonce of the given contract by one.
func (s *CachedState) IncrementNonce(address Address) error {
	nonce, err := s.NonceAt(address)
	if err != nil {
		return err
	}
	s.nonces[address] = nonce.Add(felt.New(1))
	return nil
}

func (s *CachedState) ClassHashAt(address Address) (ClassHash, error) {
	if hash, found := s.classes[address]; found {
		return hash, nil
	}
	hash, err := s.reader.ClassHashAt(address)
	if err != nil {
		return ClassHash{}, fmt.Errorf("failed to read class hash of %v: %w", address, err)
	}
	return hash, nil
}

// Deploy registers a contract instance of the given class at the given
// address.
func (s *CachedState) Deploy(address Address, class ClassHash) error {
	current, err := s.ClassHashAt(address)
	if err != nil {
		return err
	}
	if current != (ClassHash{}) {
		return fmt.Errorf("address %v is already occupied", address)
	}
	s.classes[address] = class
	s.deployed = append(s.deployed, address)
	return nil
}

func (s *CachedState) EmitEvent(event Event) {
	s.events = append(s.events, event)
}

func (s *CachedState) Events() []Event {
	return s.events
}

// Diff summarizes the chain-state effects of one run for gas accounting.
type Diff struct {
	ModifiedSlots     int
	DeployedContracts int
	Events            int
}

func (s *CachedState) Diff() Diff {
	return Diff{
		ModifiedSlots:     len(s.storage),
		DeployedContracts: len(s.deployed),
		Events:            len(s.events),
	}
}
