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
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/starkforge/starkforge/felt"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/crypto/sha3"
)

// CacheDirName is the directory under the workspace root holding the
// durable fork caches.
const CacheDirName = ".starkforge_cache"

const (
	forkRequestTimeout = 30 * time.Second
	forkMemoryEntries  = 1 << 12
)

// forkClient is the JSON-RPC surface the fork reader depends on; it is
// implemented by rpc.Client and replaced by a stub in tests.
type forkClient interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// The on-disk caches are shared between all runs targeting the same
// (endpoint, block) pair and stay open for the lifetime of the process.
// Correctness relies on the pinned block being immutable, so entries are
// never invalidated.
var (
	openCachesMutex sync.Mutex
	openCaches      = map[string]*leveldb.DB{}
)

func openCacheDB(path string) (*leveldb.DB, error) {
	openCachesMutex.Lock()
	defer openCachesMutex.Unlock()
	if db, found := openCaches[path]; found {
		return db, nil
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open fork cache at %s: %w", path, err)
	}
	openCaches[path] = db
	return db, nil
}

// ForkReader reads contract state from a remote network at a pinned block.
// Results are memoized in memory and persisted in an on-disk cache so that
// repeated runs across process invocations avoid redundant network calls.
type ForkReader struct {
	client      forkClient
	blockNumber uint64

	memory *lru.Cache[string, felt.Felt]
	disk   *leveldb.DB

	blockMutex sync.Mutex
	block      *BlockInfo
}

// NewForkReader connects to the given endpoint and prepares the cache for
// the given pinned block number. The cache directory is namespaced by
// workspace root; passing an empty root disables the on-disk layer.
func NewForkReader(url string, blockNumber uint64, workspaceRoot string) (*ForkReader, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fork endpoint %s: %w", url, err)
	}
	var disk *leveldb.DB
	if workspaceRoot != "" {
		disk, err = openCacheDB(forkCachePath(workspaceRoot, url, blockNumber))
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return newForkReader(client, blockNumber, disk), nil
}

func newForkReader(client forkClient, blockNumber uint64, disk *leveldb.DB) *ForkReader {
	memory, err := lru.New[string, felt.Felt](forkMemoryEntries)
	if err != nil {
		panic(fmt.Sprintf("invalid LRU capacity: %v", err))
	}
	return &ForkReader{
		client:      client,
		blockNumber: blockNumber,
		memory:      memory,
		disk:        disk,
	}
}

func forkCachePath(workspaceRoot, url string, blockNumber uint64) string {
	endpoint := sha3.Sum256([]byte(url))
	name := fmt.Sprintf("%x_%d", endpoint[:8], blockNumber)
	return filepath.Join(workspaceRoot, CacheDirName, name)
}

// Close releases the network connection. The on-disk cache remains open for
// other runs targeting the same fork.
func (r *ForkReader) Close() {
	r.client.Close()
}

func (r *ForkReader) blockID() map[string]uint64 {
	return map[string]uint64{"block_number": r.blockNumber}
}

// lookup resolves a single felt-valued entry: memory cache first, then the
// on-disk cache, then the network. Fetched values are written back to both
// cache layers; re-fetching and re-writing the same key is idempotent.
func (r *ForkReader) lookup(key string, method string, args ...any) (felt.Felt, error) {
	if value, found := r.memory.Get(key); found {
		return value, nil
	}

	if r.disk != nil {
		raw, err := r.disk.Get([]byte(key), nil)
		if err == nil {
			var value felt.Felt
			if err := value.UnmarshalText(raw); err != nil {
				return felt.Felt{}, fmt.Errorf("corrupted fork cache entry %q: %w", key, err)
			}
			r.memory.Add(key, value)
			return value, nil
		}
		if err != leveldb.ErrNotFound {
			return felt.Felt{}, fmt.Errorf("failed to read fork cache entry %q: %w", key, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), forkRequestTimeout)
	defer cancel()
	var result string
	if err := r.client.CallContext(ctx, &result, method, args...); err != nil {
		return felt.Felt{}, fmt.Errorf("fork request %s failed: %w", method, err)
	}
	var value felt.Felt
	if err := value.UnmarshalText([]byte(result)); err != nil {
		return felt.Felt{}, fmt.Errorf("fork request %s returned a malformed value %q: %w", method, result, err)
	}

	if r.disk != nil {
		text, _ := value.MarshalText()
		if err := r.disk.Put([]byte(key), text, nil); err != nil {
			return felt.Felt{}, fmt.Errorf("failed to persist fork cache entry %q: %w", key, err)
		}
	}
	r.memory.Add(key, value)
	return value, nil
}

func (r *ForkReader) ClassHashAt(address Address) (ClassHash, error) {
	key := fmt.Sprintf("class/%v", address)
	value, err := r.lookup(key, "starknet_getClassHashAt", r.blockID(), address.String())
	return ClassHash(value), err
}

func (r *ForkReader) NonceAt(address Address) (felt.Felt, error) {
	key := fmt.Sprintf("nonce/%v", address)
	return r.lookup(key, "starknet_getNonce", r.blockID(), address.String())
}

func (r *ForkReader) StorageAt(address Address, key StorageKey) (felt.Felt, error) {
	cacheKey := fmt.Sprintf("storage/%v/%v", address, key)
	return r.lookup(cacheKey, "starknet_getStorageAt", address.String(), key.String(), r.blockID())
}

// BlockInfo fetches the pinned block's header once and caches it for the
// lifetime of the reader and, when a disk cache is present, across process
// invocations.
func (r *ForkReader) BlockInfo() (BlockInfo, error) {
	r.blockMutex.Lock()
	defer r.blockMutex.Unlock()
	if r.block != nil {
		return *r.block, nil
	}

	const key = "block/header"
	if r.disk != nil {
		raw, err := r.disk.Get([]byte(key), nil)
		if err == nil {
			var info BlockInfo
			if err := json.Unmarshal(raw, &info); err != nil {
				return BlockInfo{}, fmt.Errorf("corrupted fork cache entry %q: %w", key, err)
			}
			r.block = &info
			return info, nil
		}
		if err != leveldb.ErrNotFound {
			return BlockInfo{}, fmt.Errorf("failed to read fork cache entry %q: %w", key, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), forkRequestTimeout)
	defer cancel()
	var header struct {
		BlockNumber      uint64    `json:"block_number"`
		Timestamp        uint64    `json:"timestamp"`
		SequencerAddress felt.Felt `json:"sequencer_address"`
	}
	if err := r.client.CallContext(ctx, &header, "starknet_getBlockWithTxHashes", r.blockID()); err != nil {
		return BlockInfo{}, fmt.Errorf("failed to fetch fork block header: %w", err)
	}
	info := BlockInfo{
		BlockNumber:      header.BlockNumber,
		Timestamp:        header.Timestamp,
		SequencerAddress: Address(header.SequencerAddress),
	}

	if r.disk != nil {
		raw, err := json.Marshal(info)
		if err == nil {
			err = r.disk.Put([]byte(key), raw, nil)
		}
		if err != nil {
			return BlockInfo{}, fmt.Errorf("failed to persist fork cache entry %q: %w", key, err)
		}
	}
	r.block = &info
	return info, nil
}
