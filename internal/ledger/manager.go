// Package ledger is the entry point for working with local ledgers: it ties
// the catalog of names to per-ledger storage, chain index, verifier and tip
// forwarder.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/catalog"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/metrics"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by every Manager method after Close.
var ErrClosed = errors.New("ledger manager closed")

// Manager opens ledgers by name and keeps at most one handle per ledger.
type Manager struct {
	cfg     *config.Config
	names   registry
	cat     *catalog.Catalog // badger backend only
	mem     *memoryRegistry  // memory backend only
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex // guards open and closed
	open   map[string]*Ledger
	closed bool
}

// New creates a manager for cfg. m may be nil.
func New(cfg *config.Config, m *metrics.Metrics) (*Manager, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	mgr := &Manager{
		cfg:     cfg,
		metrics: m,
		logger:  log.Ledger,
		open:    make(map[string]*Ledger),
	}
	switch cfg.Backend {
	case config.BackendMemory:
		mgr.mem = newMemoryRegistry()
		mgr.names = mgr.mem
	default:
		mgr.cat = catalog.New(cfg.RootDir)
		mgr.names = mgr.cat
	}
	mgr.logger.Debug().
		Str("root", cfg.RootDir).
		Str("backend", string(cfg.Backend)).
		Msg("Ledger manager ready")
	return mgr, nil
}

// List returns the names of all ledgers. See catalog.Catalog.List for the
// error contract.
func (m *Manager) List() ([]string, error) {
	return m.names.List()
}

// Create makes a new ledger anchored at genesis. The tip starts at genesis.
// The genesis block itself is stored later with Import.
func (m *Manager) Create(name string, genesis types.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if _, err := m.names.Create(name); err != nil {
		return err
	}
	db, err := m.openDB(name)
	if err != nil {
		m.rollbackCreate(name, nil)
		return fmt.Errorf("%w: %w", catalog.ErrCannotInitialize, err)
	}
	if _, err := chain.InitIndex(db, genesis); err != nil {
		m.rollbackCreate(name, db)
		return fmt.Errorf("%w: %w", catalog.ErrCannotInitialize, err)
	}
	l, err := openLedger(name, db, m.cfg.Cache.Blocks, m.metrics, log.WithLedger(m.logger, name))
	if err != nil {
		m.rollbackCreate(name, db)
		return err
	}
	m.open[name] = l
	l.logger.Info().Str("genesis", genesis.String()).Msg("Ledger created")
	return nil
}

// rollbackCreate undoes a partial Create. db may be nil.
func (m *Manager) rollbackCreate(name string, db storage.DB) {
	if db != nil {
		if err := db.Close(); err != nil {
			m.logger.Warn().Err(err).Str("ledger", name).Msg("Close after failed create")
		}
	}
	if err := m.names.Remove(name); err != nil {
		m.logger.Warn().Err(err).Str("ledger", name).Msg("Remove after failed create")
	}
}

// Remove closes and deletes a ledger with all its blocks.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if l, ok := m.open[name]; ok {
		if err := l.close(); err != nil {
			return fmt.Errorf("close ledger %s: %w", name, err)
		}
		delete(m.open, name)
	}
	if err := m.names.Remove(name); err != nil {
		return err
	}
	m.logger.Info().Str("ledger", name).Msg("Ledger removed")
	return nil
}

// Open returns the handle for an existing ledger, opening it on first use.
func (m *Manager) Open(name string) (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if l, ok := m.open[name]; ok {
		return l, nil
	}

	ok, err := m.names.Exists(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrLedgerNotFound, name)
	}
	db, err := m.openDB(name)
	if err != nil {
		return nil, err
	}
	l, err := openLedger(name, db, m.cfg.Cache.Blocks, m.metrics, log.WithLedger(m.logger, name))
	if err != nil {
		db.Close()
		return nil, err
	}
	m.open[name] = l
	return l, nil
}

func (m *Manager) openDB(name string) (storage.DB, error) {
	if m.mem != nil {
		return m.mem.namespace(name), nil
	}
	defer log.Benchmark("open ledger " + name)()
	return storage.NewBadger(m.cat.Path(name))
}

// Import stores an encoded block in the named ledger.
func (m *Manager) Import(name string, raw []byte) (types.Hash, error) {
	l, err := m.Open(name)
	if err != nil {
		return types.Hash{}, err
	}
	return l.Import(raw)
}

// Blocks lists the hashes of every block stored in the named ledger.
func (m *Manager) Blocks(name string) ([]types.Hash, error) {
	l, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	return l.Blocks()
}

// GetBlock returns a decoded block from the named ledger.
func (m *Manager) GetBlock(name string, hash types.Hash) (*block.Block, error) {
	l, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	return l.GetBlock(hash)
}

// GetRawBlock returns the stored bytes of a block from the named ledger.
func (m *Manager) GetRawBlock(name string, hash types.Hash) ([]byte, error) {
	l, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	return l.GetRawBlock(hash)
}

// Verify checks the named ledger from its tip to its genesis.
func (m *Manager) Verify(name string, limit int) (*chain.Outcome, error) {
	l, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	return l.Verify(limit)
}

// Forward moves the named ledger's tip to target.
func (m *Manager) Forward(name string, target types.Hash) error {
	l, err := m.Open(name)
	if err != nil {
		return err
	}
	return l.Forward(target)
}

// Tip returns a copy of the named ledger's chain index.
func (m *Manager) Tip(name string) (chain.Index, error) {
	l, err := m.Open(name)
	if err != nil {
		return chain.Index{}, err
	}
	return l.Tip(), nil
}

// Close closes every open ledger. The manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for name, l := range m.open {
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ledger %s: %w", name, err)
		}
	}
	m.open = nil
	if m.mem != nil {
		m.mem.db.Close()
	}
	return firstErr
}
