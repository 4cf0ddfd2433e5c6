package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key prefixes and state keys for a ledger database.
var (
	prefixBlock = []byte("b/") // b/<hash(32)> -> encoded block
	keyGenesis  = []byte("s/genesis")
	keyTipHash  = []byte("s/tip")
)

// DefaultCacheSize is the number of raw blocks a BlockStore keeps in memory.
const DefaultCacheSize = 1024

// BlockSource is the read side of a block store used by the verifier and
// the forwarder.
type BlockSource interface {
	// Get returns the raw bytes stored under hash. A missing block is a
	// *BlockError matching ErrBlockNotFound; anything else is a storage fault.
	Get(hash types.Hash) ([]byte, error)
	Has(hash types.Hash) (bool, error)
}

// BlockStore persists raw encoded blocks keyed by header hash.
// Blocks are immutable once stored, so reads are cached.
type BlockStore struct {
	db    storage.DB
	cache *lru.Cache[types.Hash, []byte]
}

// NewBlockStore creates a block store backed by the given database.
// cacheSize <= 0 disables the cache.
func NewBlockStore(db storage.DB, cacheSize int) *BlockStore {
	bs := &BlockStore{db: db}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		bs.cache, _ = lru.New[types.Hash, []byte](cacheSize)
	}
	return bs
}

// Put stores raw block bytes under hash. The caller is responsible for hash
// being the header hash of raw.
func (bs *BlockStore) Put(hash types.Hash, raw []byte) error {
	if err := bs.db.Put(blockKey(hash), raw); err != nil {
		return fmt.Errorf("block put %s: %w", hash, err)
	}
	if bs.cache != nil {
		bs.cache.Remove(hash)
	}
	return nil
}

// Get retrieves the raw bytes of a block. The caller owns the returned slice.
func (bs *BlockStore) Get(hash types.Hash) ([]byte, error) {
	if bs.cache != nil {
		if raw, ok := bs.cache.Get(hash); ok {
			return bytes.Clone(raw), nil
		}
	}
	raw, err := bs.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, blockErr(ErrBlockNotFound, hash, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("block get %s: %w", hash, err)
	}
	if bs.cache != nil {
		bs.cache.Add(hash, bytes.Clone(raw))
	}
	return raw, nil
}

// Has checks if a block exists by hash.
func (bs *BlockStore) Has(hash types.Hash) (bool, error) {
	if bs.cache != nil && bs.cache.Contains(hash) {
		return true, nil
	}
	ok, err := bs.db.Has(blockKey(hash))
	if err != nil {
		return false, fmt.Errorf("block has %s: %w", hash, err)
	}
	return ok, nil
}

// ForEachHash calls fn for every stored block hash, in key order for
// ordered backends.
func (bs *BlockStore) ForEachHash(fn func(types.Hash) error) error {
	return bs.db.ForEach(prefixBlock, func(key, _ []byte) error {
		h, err := types.BytesToHash(key[len(prefixBlock):])
		if err != nil {
			return fmt.Errorf("corrupt block key %x: %w", key, err)
		}
		return fn(h)
	})
}

func blockKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixBlock)+types.HashSize)
	copy(key, prefixBlock)
	copy(key[len(prefixBlock):], hash[:])
	return key
}
