package bisim

import (
	"sort"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/pmonson711/mCRL2/hashmap"
	"github.com/pmonson711/mCRL2/lts"
)

// step is one label together with where it leads, as a distribution over blocks.
type step struct {
	label  int
	target lts.Distribution
}

// signature is the key a state is grouped by in a round: its current block and the set of
// steps it can take.
type signature struct {
	block int
	steps []step
}

var _ hashmap.Hashable[signature] = signature{}

// canonical sorts steps by label then target and drops repeats.
func canonical(block int, steps []step) signature {
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].label != steps[j].label {
			return steps[i].label < steps[j].label
		}
		return steps[i].target.Compare(steps[j].target) < 0
	})
	out := steps[:0]
	for i, st := range steps {
		if i > 0 && st.label == out[len(out)-1].label && st.target.Equal(out[len(out)-1].target) {
			continue
		}
		out = append(out, st)
	}
	return signature{block: block, steps: out}
}

func (s signature) Hash() uint32 {
	h := fnv1a.HashUint32(uint32(s.block))
	for _, st := range s.steps {
		h = fnv1a.AddUint32(h, uint32(st.label))
		h = fnv1a.AddUint32(h, st.target.Hash())
	}
	return h
}

func (s signature) Equal(other signature) bool {
	if s.block != other.block || len(s.steps) != len(other.steps) {
		return false
	}
	for i := range s.steps {
		if s.steps[i].label != other.steps[i].label || !s.steps[i].target.Equal(other.steps[i].target) {
			return false
		}
	}
	return true
}

// strongStep is a label with the block of its single target.
type strongStep struct {
	label, block int
}

type strongSignature struct {
	block int
	steps []strongStep
}

var _ hashmap.Hashable[strongSignature] = strongSignature{}

func canonicalStrong(block int, steps []strongStep) strongSignature {
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].label != steps[j].label {
			return steps[i].label < steps[j].label
		}
		return steps[i].block < steps[j].block
	})
	out := steps[:0]
	for i, st := range steps {
		if i > 0 && st == out[len(out)-1] {
			continue
		}
		out = append(out, st)
	}
	return strongSignature{block: block, steps: out}
}

func (s strongSignature) Hash() uint32 {
	h := fnv1a.HashUint32(uint32(s.block))
	for _, st := range s.steps {
		h = fnv1a.AddUint32(h, uint32(st.label))
		h = fnv1a.AddUint32(h, uint32(st.block))
	}
	return h
}

func (s strongSignature) Equal(other strongSignature) bool {
	if s.block != other.block || len(s.steps) != len(other.steps) {
		return false
	}
	for i := range s.steps {
		if s.steps[i] != other.steps[i] {
			return false
		}
	}
	return true
}
