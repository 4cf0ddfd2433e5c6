package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Index is the per-ledger chain record: the genesis anchor, fixed when the
// ledger is created, and the current tip. It performs no validation; the
// Verifier checks that tip reaches genesis.
type Index struct {
	genesis types.Hash
	tip     types.Hash
}

// NewIndex returns an index anchored at genesis with tip set to tip.
func NewIndex(genesis, tip types.Hash) Index {
	return Index{genesis: genesis, tip: tip}
}

// Anchor returns the genesis hash the ledger must be rooted at.
func (idx *Index) Anchor() types.Hash {
	return idx.genesis
}

// Tip returns the current tip hash.
func (idx *Index) Tip() types.Hash {
	return idx.tip
}

// AdvanceTo moves the tip. Only Forward calls this.
func (idx *Index) AdvanceTo(tip types.Hash) {
	idx.tip = tip
}

// InitIndex writes a fresh index for genesis into db, with the tip at genesis.
func InitIndex(db storage.DB, genesis types.Hash) (Index, error) {
	ok, err := db.Has(keyGenesis)
	if err != nil {
		return Index{}, fmt.Errorf("check index: %w", err)
	}
	if ok {
		return Index{}, ErrIndexExists
	}

	batch := storage.NewBatch(db)
	if err := batch.Put(keyGenesis, genesis[:]); err != nil {
		return Index{}, fmt.Errorf("set genesis: %w", err)
	}
	if err := batch.Put(keyTipHash, genesis[:]); err != nil {
		return Index{}, fmt.Errorf("set tip: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return Index{}, fmt.Errorf("write index: %w", err)
	}
	return NewIndex(genesis, genesis), nil
}

// LoadIndex reads the index stored in db.
func LoadIndex(db storage.DB) (Index, error) {
	genesis, err := loadHash(db, keyGenesis)
	if err != nil {
		return Index{}, fmt.Errorf("load genesis: %w", err)
	}
	tip, err := loadHash(db, keyTipHash)
	if err != nil {
		return Index{}, fmt.Errorf("load tip: %w", err)
	}
	return NewIndex(genesis, tip), nil
}

// SaveTip persists the index tip. The genesis record is never rewritten.
func SaveTip(db storage.DB, idx Index) error {
	tip := idx.Tip()
	if err := db.Put(keyTipHash, tip[:]); err != nil {
		return fmt.Errorf("set tip hash: %w", err)
	}
	return nil
}

func loadHash(db storage.DB, key []byte) (types.Hash, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, ErrIndexMissing
	}
	if err != nil {
		return types.Hash{}, err
	}
	h, err := types.BytesToHash(data)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return h, nil
}
