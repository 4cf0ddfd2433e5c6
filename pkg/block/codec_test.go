package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	blk, _ := signedBlock(t)

	raw, err := Encode(blk)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), got.Hash())
	assert.Equal(t, blk.Body, got.Body)
	assert.Equal(t, blk.Header.Signature, got.Header.Signature)
	assert.NoError(t, got.Validate())
}

func TestEncode_Deterministic(t *testing.T) {
	blk, _ := signedBlock(t)
	a, err := Encode(blk)
	require.NoError(t, err)
	b, err := Encode(blk)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_NilHeader(t *testing.T) {
	_, err := Encode(&Block{})
	assert.ErrorIs(t, err, ErrNilHeader)
}

func TestDecode_Malformed(t *testing.T) {
	blk, _ := signedBlock(t)
	raw, err := Encode(blk)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xff, 0x00, 0x13, 0x37}},
		{"truncated", raw[:len(raw)/2]},
		{"trailing bytes", append(append([]byte{}, raw...), 0x00)},
		{"wrong shape", []byte{0x83, 0x01, 0x02, 0x03}}, // [1, 2, 3]
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)

			var de *DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}
