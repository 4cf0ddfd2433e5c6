package ledger

import (
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend config.Backend) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.Backend = backend
	cfg.Cache.Blocks = 8
	return cfg
}

func testManager(t *testing.T, backend config.Backend) *Manager {
	t.Helper()
	m, err := New(testConfig(t, backend), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// forEachBackend runs fn once per storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, m *Manager)) {
	for _, b := range []config.Backend{config.BackendMemory, config.BackendBadger} {
		t.Run(string(b), func(t *testing.T) {
			fn(t, testManager(t, b))
		})
	}
}

// chainBuilder produces encoded blocks of one linear chain.
type chainBuilder struct {
	key *crypto.PrivateKey
}

func newChainBuilder(t *testing.T) *chainBuilder {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &chainBuilder{key: key}
}

func (cb *chainBuilder) genesis(t *testing.T) (types.Hash, []byte) {
	t.Helper()
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		Timestamp: 1700000000,
	}, []byte("genesis"))
	return encode(t, blk)
}

func (cb *chainBuilder) child(t *testing.T, prev types.Hash, height uint64) (types.Hash, []byte) {
	t.Helper()
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  prev,
		Timestamp: 1700000000 + height,
		Height:    height,
	}, []byte{byte(height)})
	require.NoError(t, blk.Sign(cb.key))
	return encode(t, blk)
}

func encode(t *testing.T, blk *block.Block) (types.Hash, []byte) {
	t.Helper()
	raw, err := block.Encode(blk)
	require.NoError(t, err)
	return blk.Hash(), raw
}

// seed creates ledger name holding genesis plus n blocks with the tip at the
// last one, and returns the hashes in chain order.
func seed(t *testing.T, m *Manager, name string, n int) []types.Hash {
	t.Helper()
	cb := newChainBuilder(t)
	g, raw := cb.genesis(t)
	require.NoError(t, m.Create(name, g))
	_, err := m.Import(name, raw)
	require.NoError(t, err)

	hashes := []types.Hash{g}
	for i := 1; i <= n; i++ {
		h, raw := cb.child(t, hashes[i-1], uint64(i))
		got, err := m.Import(name, raw)
		require.NoError(t, err)
		require.Equal(t, h, got)
		hashes = append(hashes, h)
	}
	if n > 0 {
		require.NoError(t, m.Forward(name, hashes[n]))
	}
	return hashes
}
