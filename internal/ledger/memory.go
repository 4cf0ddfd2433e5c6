package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-ledger/internal/catalog"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
)

// registry is the set of ledger names a Manager can open.
type registry interface {
	List() ([]string, error)
	Exists(name string) (bool, error)
	Create(name string) (string, error)
	Remove(name string) error
}

// memoryRegistry keeps ledger names next to their data in one shared
// MemoryDB. Each ledger gets its own key namespace.
type memoryRegistry struct {
	db *storage.MemoryDB

	mu    sync.Mutex
	names map[string]struct{}
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{db: storage.NewMemory(), names: make(map[string]struct{})}
}

// namespace returns the key space of a ledger. Names never contain '/', so
// namespaces cannot overlap.
func (r *memoryRegistry) namespace(name string) *storage.PrefixDB {
	return storage.NewPrefixDB(r.db, []byte("l/"+name+"/"))
}

func (r *memoryRegistry) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.names) == 0 {
		return nil, catalog.ErrNoLedgers
	}
	names := make([]string, 0, len(r.names))
	for n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (r *memoryRegistry) Exists(name string) (bool, error) {
	if err := catalog.ValidateName(name); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok, nil
}

func (r *memoryRegistry) Create(name string) (string, error) {
	if err := catalog.ValidateName(name); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return "", fmt.Errorf("%w: %s", catalog.ErrLedgerExists, name)
	}
	r.names[name] = struct{}{}
	return name, nil
}

func (r *memoryRegistry) Remove(name string) error {
	if err := catalog.ValidateName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; !ok {
		return fmt.Errorf("%w: %s", catalog.ErrLedgerNotFound, name)
	}
	if err := r.namespace(name).DeleteAll(); err != nil {
		return fmt.Errorf("remove ledger %s: %w", name, err)
	}
	delete(r.names, name)
	return nil
}
