package chain

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/stretchr/testify/require"
)

var errDisk = errors.New("disk on fire")

// testLedger is a block store plus the hashes of a linear chain stored in it.
type testLedger struct {
	db     *storage.MemoryDB
	store  *BlockStore
	key    *crypto.PrivateKey
	hashes []types.Hash // hashes[0] is genesis
}

func (l *testLedger) genesis() types.Hash { return l.hashes[0] }
func (l *testLedger) tip() types.Hash     { return l.hashes[len(l.hashes)-1] }
func (l *testLedger) index() Index        { return NewIndex(l.genesis(), l.tip()) }

// newTestLedger stores an unsigned genesis block followed by n signed blocks.
func newTestLedger(t *testing.T, n int) *testLedger {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	db := storage.NewMemory()
	l := &testLedger{db: db, store: NewBlockStore(db, 16), key: key}

	gen := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		Timestamp: 1700000000,
	}, []byte("genesis"))
	l.hashes = append(l.hashes, l.put(t, gen))

	for i := 1; i <= n; i++ {
		l.hashes = append(l.hashes, l.put(t, l.child(t, l.tip(), uint64(i), []byte{byte(i)})))
	}
	return l
}

// child builds a signed block linked to prev.
func (l *testLedger) child(t *testing.T, prev types.Hash, height uint64, body []byte) *block.Block {
	t.Helper()
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  prev,
		Timestamp: 1700000000 + height,
		Height:    height,
	}, body)
	require.NoError(t, blk.Sign(l.key))
	return blk
}

// put encodes blk and stores it under its own hash.
func (l *testLedger) put(t *testing.T, blk *block.Block) types.Hash {
	t.Helper()
	raw, err := block.Encode(blk)
	require.NoError(t, err)
	hash := blk.Hash()
	require.NoError(t, l.store.Put(hash, raw))
	return hash
}

// putRaw stores arbitrary bytes under hash.
func (l *testLedger) putRaw(t *testing.T, hash types.Hash, raw []byte) {
	t.Helper()
	require.NoError(t, l.store.Put(hash, raw))
}

// brokenSource fails every Get and/or Has with errDisk.
type brokenSource struct {
	BlockSource
	failGet bool
	failHas bool
}

func (b brokenSource) Get(h types.Hash) ([]byte, error) {
	if b.failGet {
		return nil, errDisk
	}
	return b.BlockSource.Get(h)
}

func (b brokenSource) Has(h types.Hash) (bool, error) {
	if b.failHas {
		return false, errDisk
	}
	return b.BlockSource.Has(h)
}

// brokenDB fails every read with errDisk.
type brokenDB struct {
	storage.DB
}

func (brokenDB) Get([]byte) ([]byte, error) { return nil, errDisk }
func (brokenDB) Has([]byte) (bool, error)   { return false, errDisk }
