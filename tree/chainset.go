package tree

import "github.com/eth2030/chaintree/types"

// ChainIDSet is an unordered set of chain IDs, returned by index operations
// to tell the owning BlockchainTree which chains are no longer reachable.
type ChainIDSet map[types.ChainID]struct{}

func newChainIDSet() ChainIDSet { return make(ChainIDSet) }

func (s ChainIDSet) add(id types.ChainID) { s[id] = struct{}{} }

// union merges other into s and returns s.
func (s ChainIDSet) union(other ChainIDSet) ChainIDSet {
	for id := range other {
		s[id] = struct{}{}
	}
	return s
}

// Slice returns the set's members as a slice, in no particular order.
func (s ChainIDSet) Slice() []types.ChainID {
	out := make([]types.ChainID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Contains reports whether id is a member of the set.
func (s ChainIDSet) Contains(id types.ChainID) bool {
	_, ok := s[id]
	return ok
}
