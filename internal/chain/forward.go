package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Forward moves idx's tip to target after a single existence check against
// blocks. It does not walk the chain between the old and the new tip; run
// the Verifier afterwards for that. On any error idx is left untouched.
//
// Callers must serialize Forward calls on the same index.
func Forward(idx *Index, blocks BlockSource, target types.Hash) error {
	ok, err := blocks.Has(target)
	if err != nil {
		return fmt.Errorf("look up forward target: %w", err)
	}
	if !ok {
		return &ForwardError{Target: target}
	}
	idx.AdvanceTo(target)
	return nil
}
