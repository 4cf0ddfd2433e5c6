package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
)

// Validation errors.
var (
	ErrNilHeader       = errors.New("block has nil header")
	ErrBadVersion      = errors.New("unsupported block version")
	ErrZeroTimestamp   = errors.New("block timestamp is zero")
	ErrBodyTooLarge    = errors.New("block body too large")
	ErrBadBodyHash     = errors.New("body hash mismatch")
	ErrGenesisHeight   = errors.New("root block must have height 0")
	ErrBadHeight       = errors.New("non-root block must have height > 0")
	ErrMissingProducer = errors.New("non-root block has no producer key")
	ErrBadProducer     = errors.New("invalid producer key")
	ErrBadSignature    = errors.New("invalid producer signature")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version written by this software.
	MaxVersion     = 1 // Bump when a new block version is introduced.
)

// MaxBodySize caps the opaque payload of a single block.
const MaxBodySize = 2 << 20

// Validate checks block structure and the producer signature. It does not
// look at other blocks: linkage is checked by the chain verifier.
func (b *Block) Validate() error {
	h := b.Header
	if h == nil {
		return ErrNilHeader
	}

	if h.Version < 1 || h.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, h.Version, MaxVersion)
	}

	if h.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if len(b.Body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBodyTooLarge, len(b.Body), MaxBodySize)
	}

	if got := crypto.Hash(b.Body); got != h.BodyHash {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadBodyHash, h.BodyHash, got)
	}

	if b.IsGenesis() {
		if h.Height != 0 {
			return fmt.Errorf("%w: got %d", ErrGenesisHeight, h.Height)
		}
		// Root blocks may be unsigned.
		if len(h.Producer) == 0 && len(h.Signature) == 0 {
			return nil
		}
	} else {
		if h.Height == 0 {
			return ErrBadHeight
		}
		if len(h.Producer) == 0 {
			return ErrMissingProducer
		}
	}

	return verifySignature(h)
}

func verifySignature(h *Header) error {
	if err := crypto.ValidatePublicKey(h.Producer); err != nil {
		return fmt.Errorf("%w: %v", ErrBadProducer, err)
	}
	hash := h.Hash()
	if !crypto.VerifySignature(hash[:], h.Signature, h.Producer) {
		return ErrBadSignature
	}
	return nil
}
