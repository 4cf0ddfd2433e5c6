// Package catalog keeps the set of named local ledgers on disk.
//
// Every ledger lives in its own directory under <root>/ledgers/<name>.
// The catalog only manages those directories; what a ledger stores inside
// is up to the storage backend.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/hashicorp/go-multierror"
)

// MaxNameLen is the longest accepted ledger name.
const MaxNameLen = 64

const ledgersDir = "ledgers"

var (
	ErrNoLedgers        = errors.New("no local ledgers yet")
	ErrPermissionDenied = errors.New("no local ledgers (permission denied to the ledger root directory, check the root-dir option)")
	ErrInvalidName      = errors.New("ledger with invalid name")
	ErrCannotInitialize = errors.New("cannot initialize the ledger directory")
	ErrLedgerExists     = errors.New("ledger already exists")
	ErrLedgerNotFound   = errors.New("ledger does not exist")
)

// InvalidNameError describes a name that cannot identify a ledger.
type InvalidNameError struct {
	Raw    string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrInvalidName, e.Raw, e.Reason)
}

func (e *InvalidNameError) Is(target error) bool { return target == ErrInvalidName }

// ValidateName checks that name is usable as a single directory name on
// every platform: 1..MaxNameLen characters from [A-Za-z0-9._-], not
// starting with '.' or '-'.
func ValidateName(name string) error {
	if name == "" {
		return &InvalidNameError{Raw: name, Reason: "empty"}
	}
	if len(name) > MaxNameLen {
		return &InvalidNameError{Raw: name, Reason: fmt.Sprintf("longer than %d characters", MaxNameLen)}
	}
	if name[0] == '.' || name[0] == '-' {
		return &InvalidNameError{Raw: name, Reason: fmt.Sprintf("cannot start with %q", name[0])}
	}
	for i := 0; i < len(name); i++ {
		if !nameChar(name[i]) {
			return &InvalidNameError{Raw: name, Reason: fmt.Sprintf("invalid character %q at %d", name[i], i)}
		}
	}
	return nil
}

func nameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}

// Catalog manages ledger directories under a root directory.
type Catalog struct {
	dir string
}

// New returns a catalog rooted at root. Nothing is created until the first
// ledger is.
func New(root string) *Catalog {
	return &Catalog{dir: filepath.Join(root, ledgersDir)}
}

// Dir returns the directory holding all ledgers.
func (c *Catalog) Dir() string { return c.dir }

// Path returns the directory of the named ledger. The name must be valid.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Exists reports whether the named ledger directory is present.
func (c *Catalog) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(c.Path(name))
	switch {
	case err == nil:
		return info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case errors.Is(err, fs.ErrPermission):
		return false, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return false, fmt.Errorf("stat ledger %s: %w", name, err)
	}
}

// List returns the names of all ledgers in byte order.
//
// Directories whose names fail ValidateName are not returned; one
// *InvalidNameError per such entry is collected into the returned error,
// alongside the valid names.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNoLedgers
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case err != nil:
		return nil, fmt.Errorf("read ledgers dir: %w", err)
	}

	var (
		names   []string
		invalid *multierror.Error
		dirs    int
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dirs++
		if err := ValidateName(e.Name()); err != nil {
			log.Catalog.Warn().Str("entry", e.Name()).Err(err).Msg("Skipping ledger directory")
			invalid = multierror.Append(invalid, err)
			continue
		}
		names = append(names, e.Name())
	}
	if dirs == 0 {
		return nil, ErrNoLedgers
	}
	sort.Strings(names)
	return names, invalid.ErrorOrNil()
}

// Create makes the directory for a new ledger and returns its path.
func (c *Catalog) Create(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCannotInitialize, err)
	}
	path := c.Path(name)
	if err := os.Mkdir(path, 0700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrLedgerExists, name)
		}
		return "", fmt.Errorf("%w: %w", ErrCannotInitialize, err)
	}
	log.Catalog.Debug().Str("ledger", name).Str("path", path).Msg("Ledger directory created")
	return path, nil
}

// Remove deletes the named ledger directory and everything in it.
func (c *Catalog) Remove(name string) error {
	ok, err := c.Exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLedgerNotFound, name)
	}
	if err := os.RemoveAll(c.Path(name)); err != nil {
		return fmt.Errorf("remove ledger %s: %w", name, err)
	}
	log.Catalog.Debug().Str("ledger", name).Msg("Ledger directory removed")
	return nil
}
