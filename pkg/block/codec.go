package block

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/fxamacker/cbor/v2"
)

// ErrMalformed matches every error returned by Decode.
var ErrMalformed = errors.New("malformed block encoding")

// DecodeError reports bytes that cannot be parsed as a block.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformed, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformed) true for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

// wireHeader and wireBlock are the CBOR array layouts of Header and Block.
type wireHeader struct {
	_         struct{} `cbor:",toarray"`
	Version   uint32
	PrevHash  []byte
	BodyHash  []byte
	Timestamp uint64
	Height    uint64
	Producer  []byte
	Signature []byte
}

type wireBlock struct {
	_      struct{} `cbor:",toarray"`
	Header wireHeader
	Body   []byte
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("block: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxNestedLevels:  4,
		MaxArrayElements: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("block: cbor dec mode: %v", err))
	}
}

// Encode serializes a block to its canonical CBOR form.
func Encode(b *Block) ([]byte, error) {
	if b == nil || b.Header == nil {
		return nil, ErrNilHeader
	}
	h := b.Header
	w := wireBlock{
		Header: wireHeader{
			Version:   h.Version,
			PrevHash:  h.PrevHash[:],
			BodyHash:  h.BodyHash[:],
			Timestamp: h.Timestamp,
			Height:    h.Height,
			Producer:  h.Producer,
			Signature: h.Signature,
		},
		Body: b.Body,
	}
	data, err := encMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal block: %w", err)
	}
	return data, nil
}

// Decode parses raw bytes into a Block. It only checks the encoding; use
// Validate for the block-internal rules. Every failure is a *DecodeError.
func Decode(raw []byte) (*Block, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}

	var w wireBlock
	dec := decMode.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if n := dec.NumBytesRead(); n != len(raw) {
		return nil, &DecodeError{Err: fmt.Errorf("%d trailing bytes", len(raw)-n)}
	}

	prev, err := types.BytesToHash(w.Header.PrevHash)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("prev hash: %w", err)}
	}
	body, err := types.BytesToHash(w.Header.BodyHash)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("body hash: %w", err)}
	}

	return &Block{
		Header: &Header{
			Version:   w.Header.Version,
			PrevHash:  prev,
			BodyHash:  body,
			Timestamp: w.Header.Timestamp,
			Height:    w.Header.Height,
			Producer:  w.Header.Producer,
			Signature: w.Header.Signature,
		},
		Body: w.Body,
	}, nil
}
