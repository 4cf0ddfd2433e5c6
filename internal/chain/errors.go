package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is; the typed errors below carry the diagnostics.
var (
	// Block level.
	ErrBlockNotFound   = errors.New("block does not exist")
	ErrUnreadableBlock = errors.New("block cannot be read from the local storage")
	ErrMalformedBlock  = errors.New("unsupported or corrupted block")
	ErrInvalidBlock    = errors.New("block is not valid")
	ErrHashMismatch    = errors.New("stored block hash does not match its key")
	ErrChainCycle      = errors.New("predecessor links form a cycle")

	// Forward.
	ErrForwardTargetMissing = errors.New("cannot forward to non existent hash")

	// Chain level.
	ErrGenesisNotFound = errors.New("genesis block not found")
	ErrGenesisMismatch = errors.New("chain is anchored to a different genesis")
	ErrChainNotValid   = errors.New("chain is not valid")

	// Index.
	ErrIndexMissing = errors.New("chain index not initialized")
	ErrIndexExists  = errors.New("chain index already initialized")
	ErrIndexCorrupt = errors.New("chain index corrupt")
)

// BlockError is a failure tied to one block hash. Kind is one of the
// block-level sentinels; Err is the underlying cause, if any.
type BlockError struct {
	Kind error
	Hash types.Hash
	Err  error
}

func (e *BlockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("block %s: %v: %v", e.Hash, e.Kind, e.Err)
	}
	return fmt.Sprintf("block %s: %v", e.Hash, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *BlockError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func blockErr(kind error, hash types.Hash, cause error) *BlockError {
	return &BlockError{Kind: kind, Hash: hash, Err: cause}
}

// ForwardError reports a forward whose target is not in the block store.
type ForwardError struct {
	Target types.Hash
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("%v `%s`", ErrForwardTargetMissing, e.Target)
}

func (e *ForwardError) Is(target error) bool { return target == ErrForwardTargetMissing }

// GenesisNotFoundError reports a recorded genesis hash with no stored block.
type GenesisNotFoundError struct {
	Hash types.Hash
}

func (e *GenesisNotFoundError) Error() string {
	return fmt.Sprintf("genesis data for given blockchain not found (%s)", e.Hash)
}

func (e *GenesisNotFoundError) Is(target error) bool { return target == ErrGenesisNotFound }

// GenesisMismatchError reports a walk that ended at a root block other than
// the recorded genesis.
type GenesisMismatchError struct {
	Expected types.Hash
	Got      types.Hash
}

func (e *GenesisMismatchError) Error() string {
	return fmt.Sprintf("genesis data invalid: expected root %s, chain is rooted at %s", e.Expected, e.Got)
}

func (e *GenesisMismatchError) Is(target error) bool { return target == ErrGenesisMismatch }

// ChainInvalidError is the summary of a walk that found faulty blocks.
// Invalid counts malformed and invalid blocks together; Faults keeps the
// per-block kind.
type ChainInvalidError struct {
	Invalid int
	First   types.Hash
	Faults  []*BlockError
}

func (e *ChainInvalidError) Error() string {
	return fmt.Sprintf("blockchain has %d invalid blocks (first at %s)", e.Invalid, e.First)
}

func (e *ChainInvalidError) Is(target error) bool { return target == ErrChainNotValid }
