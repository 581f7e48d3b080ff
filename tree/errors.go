package tree

import "errors"

// Construction and precondition errors. The index treats its inputs as
// trusted: these are the only failure modes exposed as return values;
// everything else is caller responsibility and is not validated on the
// hot reorg path.
var (
	// ErrEmptySeedChain is returned by New when constructed with an empty
	// seed canonical chain. canonical_tip requires a non-empty chain, so
	// this is rejected up front rather than deferred to first use.
	ErrEmptySeedChain = errors.New("blocktree: seed canonical chain must not be empty")

	// ErrNonContiguousSeedChain is returned by New when the seed canonical
	// chain's block numbers are not a contiguous range.
	ErrNonContiguousSeedChain = errors.New("blocktree: seed canonical chain must be contiguous")
)
