package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/rs/zerolog"
)

// Decoder parses raw block bytes. Failures are reported as malformed blocks.
type Decoder func(raw []byte) (*block.Block, error)

// Validator checks block-internal rules. Failures are reported as invalid blocks.
type Validator func(blk *block.Block) error

// Outcome is the result of one verification walk.
type Outcome struct {
	Genesis        types.Hash
	Tip            types.Hash
	Visited        int  // Blocks examined, including the one a fault stopped at.
	ReachedGenesis bool // The walk arrived at Genesis.
	Truncated      bool // The walk stopped at the caller's block limit.
	Faults         []*BlockError
}

// Valid reports whether the whole chain from tip to genesis was checked and
// found sound.
func (o *Outcome) Valid() bool {
	return o.ReachedGenesis && len(o.Faults) == 0
}

// InvalidCount is the number of distinct blocks with at least one fault.
func (o *Outcome) InvalidCount() int {
	seen := make(map[types.Hash]struct{}, len(o.Faults))
	for _, f := range o.Faults {
		seen[f.Hash] = struct{}{}
	}
	return len(seen)
}

// FirstFailure returns the hash of the first faulty block met from the tip.
func (o *Outcome) FirstFailure() (types.Hash, bool) {
	if len(o.Faults) == 0 {
		return types.Hash{}, false
	}
	return o.Faults[0].Hash, true
}

// Verifier walks a ledger backward from its tip to its genesis anchor.
type Verifier struct {
	blocks   BlockSource
	decode   Decoder
	validate Validator
	logger   zerolog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithDecoder replaces block.Decode.
func WithDecoder(d Decoder) Option {
	return func(v *Verifier) { v.decode = d }
}

// WithValidator replaces (*block.Block).Validate.
func WithValidator(fn Validator) Option {
	return func(v *Verifier) { v.validate = fn }
}

// WithLogger sets the logger faults and summaries are written to.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// NewVerifier creates a verifier reading from blocks.
func NewVerifier(blocks BlockSource, opts ...Option) *Verifier {
	v := &Verifier{
		blocks:   blocks,
		decode:   block.Decode,
		validate: (*block.Block).Validate,
		logger:   log.Verify,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks that idx's tip reaches its genesis through stored
// predecessor links and that every block on the way decodes, validates and
// is stored under its own hash. limit > 0 caps the number of blocks examined.
//
// The returned Outcome is always non-nil. The error is:
//   - *GenesisNotFoundError if the genesis block is not stored;
//   - *GenesisMismatchError if the walk ends at a different root block;
//   - *ChainInvalidError if any block was faulty;
//   - a storage error, propagated as is.
func (v *Verifier) Verify(idx Index, limit int) (*Outcome, error) {
	out := &Outcome{Genesis: idx.Anchor(), Tip: idx.Tip()}

	ok, err := v.blocks.Has(out.Genesis)
	if err != nil {
		return out, fmt.Errorf("look up genesis: %w", err)
	}
	if !ok {
		return out, &GenesisNotFoundError{Hash: out.Genesis}
	}

	seen := make(map[types.Hash]struct{})
	cur := out.Tip
	for {
		if limit > 0 && out.Visited >= limit {
			out.Truncated = true
			break
		}
		if _, dup := seen[cur]; dup {
			v.fault(out, blockErr(ErrChainCycle, cur, nil))
			break
		}
		seen[cur] = struct{}{}
		out.Visited++

		raw, err := v.blocks.Get(cur)
		if errors.Is(err, ErrBlockNotFound) {
			// Linkage break: the predecessor (or the tip) is not stored.
			v.fault(out, blockErr(ErrBlockNotFound, cur, nil))
			break
		}
		if err != nil {
			return out, err
		}

		blk, err := v.decode(raw)
		if err != nil {
			// Without a decoded header there is no predecessor to follow.
			v.fault(out, blockErr(ErrMalformedBlock, cur, err))
			break
		}
		if got := blk.Hash(); got != cur {
			v.fault(out, blockErr(ErrHashMismatch, cur, fmt.Errorf("decoded header hashes to %s", got)))
		}
		if err := v.validate(blk); err != nil {
			v.fault(out, blockErr(ErrInvalidBlock, cur, err))
		}

		if cur == out.Genesis {
			out.ReachedGenesis = true
			break
		}
		if blk.IsGenesis() {
			return out, &GenesisMismatchError{Expected: out.Genesis, Got: cur}
		}
		cur = blk.PrevHash()
	}

	v.logger.Info().
		Str("tip", out.Tip.Short()).
		Int("visited", out.Visited).
		Int("invalid", out.InvalidCount()).
		Bool("reached_genesis", out.ReachedGenesis).
		Bool("truncated", out.Truncated).
		Msg("Chain verification finished")

	if len(out.Faults) > 0 {
		first, _ := out.FirstFailure()
		return out, &ChainInvalidError{
			Invalid: out.InvalidCount(),
			First:   first,
			Faults:  out.Faults,
		}
	}
	return out, nil
}

func (v *Verifier) fault(out *Outcome, f *BlockError) {
	out.Faults = append(out.Faults, f)
	ev := v.logger.Warn().Str("hash", f.Hash.Short()).Str("kind", f.Kind.Error())
	if f.Err != nil {
		ev = ev.AnErr("cause", f.Err)
	}
	ev.Msg("Faulty block")
}
