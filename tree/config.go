package tree

import "github.com/eth2030/chaintree/types"

// DefaultAdditionalCanonicalHashes is 256 (the EVM's BLOCKHASH opcode
// window) plus 64 (a typical max reorg depth), matching the guidance in
// the original block indices documentation.
const DefaultAdditionalCanonicalHashes = 256 + 64

// Config seeds a new BlockIndices.
type Config struct {
	// LastFinalizedBlock is the highest finalized height at construction.
	LastFinalizedBlock types.BlockNumber

	// AdditionalCanonicalHashes is the count of hashes below finalization
	// retained so the execution environment can answer BLOCKHASH.
	AdditionalCanonicalHashes uint64

	// SeedCanonicalChain is the initial canonical sequence, loaded from the
	// persistent store. It must be non-empty and contiguous in block number.
	SeedCanonicalChain map[types.BlockNumber]types.Hash
}

// DefaultConfig returns a Config with the standard additional-hashes window.
// Callers must still supply LastFinalizedBlock and SeedCanonicalChain.
func DefaultConfig() Config {
	return Config{AdditionalCanonicalHashes: DefaultAdditionalCanonicalHashes}
}
