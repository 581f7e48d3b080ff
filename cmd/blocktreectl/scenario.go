package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eth2030/chaintree/metrics"
	"github.com/eth2030/chaintree/tree"
	"github.com/eth2030/chaintree/types"
)

// scenarioFile is the on-disk JSON format replay accepts: a seed canonical
// chain plus an ordered list of operations to apply against the resulting
// BlockchainTree.
type scenarioFile struct {
	LastFinalizedBlock       types.BlockNumber        `json:"last_finalized_block"`
	AdditionalCanonicalHashes uint64                  `json:"additional_canonical_hashes"`
	Seed                     map[string]string        `json:"seed"`
	Operations               []scenarioOp             `json:"operations"`
}

type scenarioOp struct {
	Op       string            `json:"op"`
	Blocks   []scenarioBlock   `json:"blocks,omitempty"`
	ChainID  *uint64           `json:"chain_id,omitempty"`
	Target   *types.BlockNumber `json:"target,omitempty"`
	Hashes   map[string]string `json:"hashes,omitempty"`
}

type scenarioBlock struct {
	Number     types.BlockNumber `json:"number"`
	Hash       string            `json:"hash"`
	ParentHash string            `json:"parent_hash"`
}

func parseHash(s string) (types.Hash, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return types.BytesToHash(b), nil
}

func parseNumberKeyedHashes(m map[string]string) (map[types.BlockNumber]types.Hash, error) {
	out := make(map[types.BlockNumber]types.Hash, len(m))
	for k, v := range m {
		n, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block number key %q: %w", k, err)
		}
		h, err := parseHash(v)
		if err != nil {
			return nil, err
		}
		out[n] = h
	}
	return out, nil
}

// loadScenario parses raw JSON into a scenarioFile.
func loadScenario(data []byte) (*scenarioFile, error) {
	var sf scenarioFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &sf, nil
}

// replay builds a BlockchainTree from sf's seed and applies its operations
// in order, returning a log of chain IDs dropped by each mutating step. If
// mc is non-nil, every operation is additionally recorded to it so callers
// can inspect the replay's timeline (op counts, per-op-type breakdown).
func replay(sf *scenarioFile, mc *metrics.MetricsCollector) (*tree.BlockchainTree, []string, error) {
	seed, err := parseNumberKeyedHashes(sf.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}

	bt, err := tree.NewBlockchainTree(tree.Config{
		LastFinalizedBlock:        sf.LastFinalizedBlock,
		AdditionalCanonicalHashes: sf.AdditionalCanonicalHashes,
		SeedCanonicalChain:        seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build tree: %w", err)
	}

	// chainIDByOrdinal maps the 0-based insertion order used in the
	// scenario file's "chain_id" fields to the IDs the tree actually minted,
	// since the tree (not the file) is the source of truth for IDs.
	var chainIDByOrdinal []types.ChainID
	var log []string

	for i, op := range sf.Operations {
		if mc != nil {
			mc.Record("blocktreectl.replay.op", float64(i), map[string]string{"op": op.Op})
		}
		switch op.Op {
		case "insert_chain":
			blocks := make([]tree.SealedBlock, len(op.Blocks))
			for k, b := range op.Blocks {
				hash, err := parseHash(b.Hash)
				if err != nil {
					return nil, nil, fmt.Errorf("operation %d: %w", i, err)
				}
				parent, err := parseHash(b.ParentHash)
				if err != nil {
					return nil, nil, fmt.Errorf("operation %d: %w", i, err)
				}
				blocks[k] = tree.SealedBlock{Number: b.Number, Hash: hash, ParentHash: parent}
			}
			chain := tree.NewChain(blocks...)
			id := bt.InsertChain(chain)
			chainIDByOrdinal = append(chainIDByOrdinal, id)
			log = append(log, fmt.Sprintf("op %d: insert_chain -> %s", i, id))

		case "canonicalize":
			if op.ChainID == nil {
				return nil, nil, fmt.Errorf("operation %d: canonicalize requires chain_id", i)
			}
			ordinal := int(*op.ChainID)
			if ordinal < 0 || ordinal >= len(chainIDByOrdinal) {
				return nil, nil, fmt.Errorf("operation %d: chain_id %d out of range", i, ordinal)
			}
			id := chainIDByOrdinal[ordinal]
			bt.CanonicalizeChain(id)
			log = append(log, fmt.Sprintf("op %d: canonicalize %s", i, id))

		case "finalize":
			if op.Target == nil {
				return nil, nil, fmt.Errorf("operation %d: finalize requires target", i)
			}
			dropped := bt.Finalize(*op.Target)
			log = append(log, fmt.Sprintf("op %d: finalize(%d) dropped %v", i, *op.Target, dropped))

		case "update_canonical_hashes":
			newCanon, err := parseNumberKeyedHashes(op.Hashes)
			if err != nil {
				return nil, nil, fmt.Errorf("operation %d: %w", i, err)
			}
			dropped := bt.UpdateCanonicalHashes(newCanon)
			log = append(log, fmt.Sprintf("op %d: update_canonical_hashes dropped %v", i, dropped))

		default:
			return nil, nil, fmt.Errorf("operation %d: unknown op %q", i, op.Op)
		}
	}

	return bt, log, nil
}
