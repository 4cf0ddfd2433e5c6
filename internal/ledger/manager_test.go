package ledger

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/catalog"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/metrics"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ListCreateRemove(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		_, err := m.List()
		require.ErrorIs(t, err, catalog.ErrNoLedgers)

		require.NoError(t, m.Create("testnet", types.Hash{1}))
		require.NoError(t, m.Create("mainnet", types.Hash{2}))
		assert.ErrorIs(t, m.Create("mainnet", types.Hash{3}), catalog.ErrLedgerExists)
		assert.ErrorIs(t, m.Create("../up", types.Hash{3}), catalog.ErrInvalidName)

		names, err := m.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"mainnet", "testnet"}, names)

		idx, err := m.Tip("mainnet")
		require.NoError(t, err)
		assert.Equal(t, types.Hash{2}, idx.Anchor())
		assert.Equal(t, types.Hash{2}, idx.Tip())

		require.NoError(t, m.Remove("mainnet"))
		assert.ErrorIs(t, m.Remove("mainnet"), catalog.ErrLedgerNotFound)
		_, err = m.Tip("mainnet")
		assert.ErrorIs(t, err, catalog.ErrLedgerNotFound)

		// The name can be reused with a fresh index.
		require.NoError(t, m.Create("mainnet", types.Hash{4}))
		idx, err = m.Tip("mainnet")
		require.NoError(t, err)
		assert.Equal(t, types.Hash{4}, idx.Anchor())
	})
}

// removeFails is a registry whose Remove always fails.
type removeFails struct {
	registry
}

func (removeFails) Remove(string) error { return errors.New("remove refused") }

func TestManager_CreateRollsBack(t *testing.T) {
	m := testManager(t, config.BackendMemory)
	// A stale index left in the namespace makes index initialization fail.
	require.NoError(t, m.mem.namespace("main").Put([]byte("s/genesis"), make([]byte, 32)))

	err := m.Create("main", types.Hash{1})
	require.ErrorIs(t, err, catalog.ErrCannotInitialize)
	require.ErrorIs(t, err, chain.ErrIndexExists)

	_, err = m.List()
	assert.ErrorIs(t, err, catalog.ErrNoLedgers)
	_, err = m.Tip("main")
	assert.ErrorIs(t, err, catalog.ErrLedgerNotFound)

	// The stale namespace was cleared with the name.
	require.NoError(t, m.Create("main", types.Hash{2}))
	idx, err := m.Tip("main")
	require.NoError(t, err)
	assert.Equal(t, types.Hash{2}, idx.Anchor())
}

func TestManager_CreateLogsRollbackFailure(t *testing.T) {
	m := testManager(t, config.BackendMemory)
	var buf bytes.Buffer
	m.logger = log.NewJSONLogger(&buf, "debug")
	m.names = removeFails{registry: m.names}
	require.NoError(t, m.mem.namespace("main").Put([]byte("s/genesis"), make([]byte, 32)))

	err := m.Create("main", types.Hash{1})
	require.ErrorIs(t, err, catalog.ErrCannotInitialize)
	assert.Contains(t, buf.String(), "Remove after failed create")
	assert.Contains(t, buf.String(), "remove refused")
}

func TestManager_UnknownLedger(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		_, err := m.Verify("nope", 0)
		assert.ErrorIs(t, err, catalog.ErrLedgerNotFound)
		assert.ErrorIs(t, m.Forward("nope", types.Hash{1}), catalog.ErrLedgerNotFound)
		_, err = m.GetBlock("nope", types.Hash{1})
		assert.ErrorIs(t, err, catalog.ErrLedgerNotFound)
	})
}

func TestManager_VerifyValidChain(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 1)

		out, err := m.Verify("main", 0)
		require.NoError(t, err)
		assert.True(t, out.Valid())
		assert.Equal(t, 0, out.InvalidCount())
		assert.Equal(t, hashes[1], out.Tip)
	})
}

func TestManager_VerifyGarbageBlock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 1)
		l, err := m.Open("main")
		require.NoError(t, err)
		require.NoError(t, l.blocks.Put(hashes[1], []byte("definitely not a block")))

		out, err := m.Verify("main", 0)
		require.ErrorIs(t, err, chain.ErrChainNotValid)
		var ce *chain.ChainInvalidError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 1, ce.Invalid)
		require.Len(t, out.Faults, 1)
		assert.Equal(t, hashes[1], out.Faults[0].Hash)
		assert.ErrorIs(t, out.Faults[0], chain.ErrMalformedBlock)

		_, err = m.GetBlock("main", hashes[1])
		assert.ErrorIs(t, err, chain.ErrUnreadableBlock)
		raw, err := m.GetRawBlock("main", hashes[1])
		require.NoError(t, err)
		assert.Equal(t, []byte("definitely not a block"), raw)
	})
}

func TestManager_VerifyGenesisNotStored(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		require.NoError(t, m.Create("empty", types.Hash{0xee}))

		_, err := m.Verify("empty", 0)
		require.ErrorIs(t, err, chain.ErrGenesisNotFound)
		assert.NotErrorIs(t, err, chain.ErrChainNotValid)
	})
}

func TestManager_VerifyGenesisMismatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		cb := newChainBuilder(t)
		other := block.NewBlock(&block.Header{Version: block.CurrentVersion, Timestamp: 42}, []byte("other root"))
		anchor, anchorRaw := encode(t, other)

		require.NoError(t, m.Create("forked", anchor))
		_, err := m.Import("forked", anchorRaw)
		require.NoError(t, err)

		g, graw := cb.genesis(t)
		a, araw := cb.child(t, g, 1)
		for _, raw := range [][]byte{graw, araw} {
			_, err := m.Import("forked", raw)
			require.NoError(t, err)
		}
		require.NoError(t, m.Forward("forked", a))

		_, err = m.Verify("forked", 0)
		require.ErrorIs(t, err, chain.ErrGenesisMismatch)
		var gm *chain.GenesisMismatchError
		require.True(t, errors.As(err, &gm))
		assert.Equal(t, anchor, gm.Expected)
		assert.Equal(t, g, gm.Got)
	})
}

func TestManager_Forward(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 2)
		z := types.Hash{0x5a}

		require.NoError(t, m.Forward("main", hashes[0]))
		idx, err := m.Tip("main")
		require.NoError(t, err)
		assert.Equal(t, hashes[0], idx.Tip())

		err = m.Forward("main", z)
		require.ErrorIs(t, err, chain.ErrForwardTargetMissing)
		idx, err = m.Tip("main")
		require.NoError(t, err)
		assert.Equal(t, hashes[0], idx.Tip())

		// Dangling tip: the tip hash is recorded but never stored.
		l, err := m.Open("main")
		require.NoError(t, err)
		l.mu.Lock()
		l.idx.AdvanceTo(z)
		l.mu.Unlock()
		out, err := m.Verify("main", 0)
		var ce *chain.ChainInvalidError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 1, ce.Invalid)
		assert.Equal(t, z, ce.First)
		assert.ErrorIs(t, out.Faults[0], chain.ErrBlockNotFound)
	})
}

func TestManager_ImportMalformed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		require.NoError(t, m.Create("main", types.Hash{1}))
		_, err := m.Import("main", []byte{0x01, 0x02})
		assert.ErrorIs(t, err, chain.ErrMalformedBlock)
	})
}

func TestManager_GetBlock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 1)

		blk, err := m.GetBlock("main", hashes[1])
		require.NoError(t, err)
		assert.Equal(t, hashes[0], blk.PrevHash())
		assert.Equal(t, uint64(1), blk.Header.Height)

		_, err = m.GetBlock("main", types.Hash{0x77})
		require.ErrorIs(t, err, chain.ErrBlockNotFound)
		assert.NotErrorIs(t, err, chain.ErrUnreadableBlock)
	})
}

func TestManager_RawBlockEditsStayLocal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 1)
		_, err := m.Verify("main", 0)
		require.NoError(t, err)

		raw, err := m.GetRawBlock("main", hashes[1])
		require.NoError(t, err)
		for i := range raw {
			raw[i] = 0xff
		}

		out, err := m.Verify("main", 0)
		require.NoError(t, err)
		assert.True(t, out.Valid())
		_, err = m.GetBlock("main", hashes[1])
		assert.NoError(t, err)
	})
}

func TestManager_Blocks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		require.NoError(t, m.Create("empty", types.Hash{1}))
		got, err := m.Blocks("empty")
		require.NoError(t, err)
		assert.Empty(t, got)

		hashes := seed(t, m, "main", 4)
		got, err = m.Blocks("main")
		require.NoError(t, err)
		assert.ElementsMatch(t, hashes, got)
		for i := 1; i < len(got); i++ {
			assert.Equal(t, -1, got[i-1].Compare(got[i]), "hashes are listed in byte order")
		}

		_, err = m.Blocks("nope")
		assert.ErrorIs(t, err, catalog.ErrLedgerNotFound)
	})
}

func TestManager_VerifyLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		seed(t, m, "main", 5)
		out, err := m.Verify("main", 3)
		require.NoError(t, err)
		assert.True(t, out.Truncated)
		assert.Equal(t, 3, out.Visited)
	})
}

func TestManager_LedgersAreIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		a := seed(t, m, "a", 2)
		b := seed(t, m, "b", 1)

		_, err := m.GetRawBlock("b", a[2])
		assert.ErrorIs(t, err, chain.ErrBlockNotFound)
		assert.ErrorIs(t, m.Forward("b", a[1]), chain.ErrForwardTargetMissing)

		require.NoError(t, m.Remove("a"))
		out, err := m.Verify("b", 0)
		require.NoError(t, err)
		assert.True(t, out.Valid())
		assert.Equal(t, b[1], out.Tip)
	})
}

func TestManager_PersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t, config.BackendBadger)
	m, err := New(cfg, nil)
	require.NoError(t, err)
	hashes := seed(t, m, "main", 3)
	require.NoError(t, m.Forward("main", hashes[2]))
	require.NoError(t, m.Close())

	_, err = m.Tip("main")
	assert.ErrorIs(t, err, ErrClosed)

	m2, err := New(cfg, nil)
	require.NoError(t, err)
	defer m2.Close()

	names, err := m2.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names)

	idx, err := m2.Tip("main")
	require.NoError(t, err)
	assert.Equal(t, hashes[0], idx.Anchor())
	assert.Equal(t, hashes[2], idx.Tip())

	out, err := m2.Verify("main", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Visited)
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(testConfig(t, config.BackendMemory), metrics.New(reg))
	require.NoError(t, err)
	defer m.Close()

	seed(t, m, "main", 2)
	_, err = m.Verify("main", 0)
	require.NoError(t, err)
	_ = m.Forward("main", types.Hash{0x5a})

	n, err := testutil.GatherAndCount(reg, "ledger_verifications_total", "ledger_forwards_total")
	require.NoError(t, err)
	// One verification series, plus ok and missing forward series.
	assert.Equal(t, 3, n)
}

func TestManager_ConcurrentForwardAndVerify(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *Manager) {
		hashes := seed(t, m, "main", 8)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func(h types.Hash) {
				defer wg.Done()
				assert.NoError(t, m.Forward("main", h))
			}(hashes[i+1])
			go func() {
				defer wg.Done()
				out, err := m.Verify("main", 0)
				assert.NoError(t, err)
				assert.True(t, out.Valid())
			}()
		}
		wg.Wait()

		idx, err := m.Tip("main")
		require.NoError(t, err)
		assert.Contains(t, hashes[1:], idx.Tip())
	})
}

func TestManager_ConcurrentOpenSharesHandle(t *testing.T) {
	cfg := testConfig(t, config.BackendBadger)
	m, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, m.Create("main", types.Hash{1}))
	require.NoError(t, m.Close())

	m, err = New(cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	handles := make([]*Ledger, 8)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := m.Open("main")
			assert.NoError(t, err)
			handles[i] = l
		}(i)
	}
	wg.Wait()
	for _, l := range handles {
		assert.Same(t, handles[0], l)
	}
}
