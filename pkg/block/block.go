// Package block defines the ledger block format: header, opaque body, the
// CBOR wire codec and the block-internal validity rules.
package block

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Block is a header plus an opaque payload. The ledger layer never looks
// inside Body; only its hash is committed to by the header.
type Block struct {
	Header *Header
	Body   []byte
}

// NewBlock creates a block with the given header and body. BodyHash is
// filled in from body.
func NewBlock(header *Header, body []byte) *Block {
	header.BodyHash = crypto.Hash(body)
	return &Block{Header: header, Body: body}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// PrevHash returns the predecessor link, or the zero hash for a root block.
func (b *Block) PrevHash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.PrevHash
}

// IsGenesis reports whether the block is a root block (no predecessor).
func (b *Block) IsGenesis() bool {
	return b.Header != nil && b.Header.PrevHash.IsZero()
}

// Sign sets the producer key on the header and signs the header hash.
func (b *Block) Sign(key *crypto.PrivateKey) error {
	b.Header.Producer = key.PublicKey()
	hash := b.Header.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return err
	}
	b.Header.Signature = sig
	return nil
}
