package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/metrics"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/rs/zerolog"
)

// Ledger is an open handle on one named ledger.
//
// Reads and block imports may run concurrently with anything. Tip changes
// are serialized by mu, so each Forward observes the tip left by the
// previous one. Verify works on a snapshot of the index and never holds mu
// while walking.
type Ledger struct {
	name    string
	db      storage.DB
	blocks  *chain.BlockStore
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu  sync.Mutex // guards idx
	idx chain.Index
}

func openLedger(name string, db storage.DB, cacheSize int, m *metrics.Metrics, logger zerolog.Logger) (*Ledger, error) {
	idx, err := chain.LoadIndex(db)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", name, err)
	}
	return &Ledger{
		name:    name,
		db:      db,
		blocks:  chain.NewBlockStore(db, cacheSize),
		metrics: m,
		logger:  logger,
		idx:     idx,
	}, nil
}

// Name returns the ledger name.
func (l *Ledger) Name() string { return l.name }

// Tip returns a copy of the chain index.
func (l *Ledger) Tip() chain.Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idx
}

// Import stores an encoded block under its header hash and returns the hash.
// The tip is not moved; use Forward for that.
func (l *Ledger) Import(raw []byte) (types.Hash, error) {
	blk, err := block.Decode(raw)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %w", chain.ErrMalformedBlock, err)
	}
	hash := blk.Hash()
	if err := l.blocks.Put(hash, raw); err != nil {
		return types.Hash{}, err
	}
	l.logger.Debug().Str("hash", hash.String()).Uint64("height", blk.Header.Height).Msg("Block imported")
	return hash, nil
}

// GetRawBlock returns the stored bytes of a block. The caller owns the
// returned slice.
func (l *Ledger) GetRawBlock(hash types.Hash) ([]byte, error) {
	return l.blocks.Get(hash)
}

// Blocks returns the hashes of every stored block in byte order, whether or
// not they are reachable from the tip.
func (l *Ledger) Blocks() ([]types.Hash, error) {
	var hashes []types.Hash
	err := l.blocks.ForEachHash(func(h types.Hash) error {
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger %s: list blocks: %w", l.name, err)
	}
	slices.SortFunc(hashes, func(a, b types.Hash) int { return a.Compare(b) })
	return hashes, nil
}

// GetBlock returns a decoded block. A stored block that cannot be decoded
// is reported as chain.ErrUnreadableBlock.
func (l *Ledger) GetBlock(hash types.Hash) (*block.Block, error) {
	raw, err := l.blocks.Get(hash)
	if err != nil {
		return nil, err
	}
	blk, err := block.Decode(raw)
	if err != nil {
		return nil, &chain.BlockError{Kind: chain.ErrUnreadableBlock, Hash: hash, Err: err}
	}
	return blk, nil
}

// Verify walks the chain from the current tip to genesis. limit > 0 caps
// the number of blocks examined.
func (l *Ledger) Verify(limit int) (*chain.Outcome, error) {
	idx := l.Tip()
	start := time.Now()
	out, err := chain.NewVerifier(l.blocks, chain.WithLogger(l.logger)).Verify(idx, limit)
	l.metrics.ObserveVerify(out, err, time.Since(start))
	return out, err
}

// Forward moves the tip to target if a block with that hash is stored.
// The new tip is persisted before it becomes visible.
func (l *Ledger) Forward(target types.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.idx
	err := chain.Forward(&next, l.blocks, target)
	if err == nil {
		err = chain.SaveTip(l.db, next)
	}
	l.metrics.ObserveForward(err)
	if err != nil {
		if errors.Is(err, chain.ErrForwardTargetMissing) {
			l.logger.Warn().Str("target", target.String()).Msg("Forward target not stored")
		}
		return err
	}

	old := l.idx.Tip()
	l.idx = next
	l.logger.Info().
		Str("old_tip", old.String()).
		Str("new_tip", target.String()).
		Msg("Tip forwarded")
	return nil
}

func (l *Ledger) close() error {
	return l.db.Close()
}
