package block

import (
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedBlock creates a valid non-root block at height 1.
func signedBlock(t *testing.T) (*Block, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	blk := NewBlock(&Header{
		Version:   CurrentVersion,
		PrevHash:  types.Hash{0xaa},
		Timestamp: 1700000000,
		Height:    1,
	}, []byte("payload"))
	require.NoError(t, blk.Sign(key))
	return blk, key
}

func genesisBlock() *Block {
	return NewBlock(&Header{
		Version:   CurrentVersion,
		Timestamp: 1700000000,
	}, []byte("genesis"))
}

func TestBlock_Validate_Valid(t *testing.T) {
	blk, _ := signedBlock(t)
	assert.NoError(t, blk.Validate())
}

func TestBlock_Validate_UnsignedGenesis(t *testing.T) {
	assert.NoError(t, genesisBlock().Validate())
}

func TestBlock_Validate_SignedGenesis(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	blk := genesisBlock()
	require.NoError(t, blk.Sign(key))
	assert.NoError(t, blk.Validate())
}

func TestBlock_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Block)
		want   error
	}{
		{"version zero", func(b *Block) { b.Header.Version = 0 }, ErrBadVersion},
		{"version too new", func(b *Block) { b.Header.Version = MaxVersion + 1 }, ErrBadVersion},
		{"zero timestamp", func(b *Block) { b.Header.Timestamp = 0 }, ErrZeroTimestamp},
		{"body swapped", func(b *Block) { b.Body = []byte("other payload") }, ErrBadBodyHash},
		{"body too large", func(b *Block) { b.Body = make([]byte, MaxBodySize+1) }, ErrBodyTooLarge},
		{"zero height", func(b *Block) { b.Header.Height = 0 }, ErrBadHeight},
		{"no producer", func(b *Block) { b.Header.Producer = nil }, ErrMissingProducer},
		{"bad producer", func(b *Block) { b.Header.Producer = []byte{0x01, 0x02} }, ErrBadProducer},
		{"height changed after signing", func(b *Block) { b.Header.Height = 7 }, ErrBadSignature},
		{"signature truncated", func(b *Block) { b.Header.Signature = b.Header.Signature[:10] }, ErrBadSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blk, _ := signedBlock(t)
			tt.mutate(blk)
			assert.ErrorIs(t, blk.Validate(), tt.want)
		})
	}
}

func TestBlock_Validate_NilHeader(t *testing.T) {
	assert.ErrorIs(t, (&Block{}).Validate(), ErrNilHeader)
}

func TestBlock_Validate_GenesisWithHeight(t *testing.T) {
	blk := genesisBlock()
	blk.Header.Height = 3
	assert.ErrorIs(t, blk.Validate(), ErrGenesisHeight)
}

func TestBlock_Validate_GenesisSignatureWithoutProducer(t *testing.T) {
	blk := genesisBlock()
	blk.Header.Signature = []byte{0x01}
	assert.ErrorIs(t, blk.Validate(), ErrBadProducer)
}

func TestHeader_HashExcludesSignature(t *testing.T) {
	blk, _ := signedBlock(t)
	before := blk.Hash()
	blk.Header.Signature = nil
	assert.Equal(t, before, blk.Hash())
}

func TestBlock_IsGenesis(t *testing.T) {
	assert.True(t, genesisBlock().IsGenesis())
	blk, _ := signedBlock(t)
	assert.False(t, blk.IsGenesis())
	assert.False(t, (&Block{}).IsGenesis())
}
