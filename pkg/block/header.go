package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Header contains block metadata and the predecessor link.
type Header struct {
	Version   uint32
	PrevHash  types.Hash // Zero for a root (genesis) block.
	BodyHash  types.Hash
	Timestamp uint64
	Height    uint64
	Producer  []byte // Compressed secp256k1 key; optional for genesis.
	Signature []byte
}

// Hash computes the block header hash.
// Excludes Signature so the hash is stable for signing.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes for hashing/signing.
// Format: version(4) | prev_hash(32) | body_hash(32) | timestamp(8) | height(8) | producer_len(1) | producer
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 85+len(h.Producer))
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.BodyHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = append(buf, byte(len(h.Producer)))
	buf = append(buf, h.Producer...)
	return buf
}
