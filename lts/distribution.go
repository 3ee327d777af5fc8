package lts

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/segmentio/fasthash/fnv1a"
)

// Entry is one state of a distribution with its probability. Probability is shared and must be
// treated as read-only.
type Entry struct {
	State       int
	Probability *big.Rat
}

// Distribution is a finite probability distribution over states, kept sorted by state with
// each state at most once. The zero Distribution is empty and not valid as a target.
type Distribution struct {
	entries []Entry
}

var ratOne = big.NewRat(1, 1)

// Dirac is the distribution putting all mass on state.
func Dirac(state int) Distribution {
	return Distribution{entries: []Entry{{State: state, Probability: ratOne}}}
}

func (d Distribution) Len() int {
	return len(d.entries)
}

func (d Distribution) Entry(i int) Entry {
	return d.entries[i]
}

func (d Distribution) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// DiracState returns the only state of a single-point distribution.
func (d Distribution) DiracState() (int, bool) {
	if len(d.entries) == 1 && d.entries[0].Probability.Cmp(ratOne) == 0 {
		return d.entries[0].State, true
	}
	return 0, false
}

func (d Distribution) IsDirac() bool {
	_, ok := d.DiracState()
	return ok
}

func (d Distribution) Sum() *big.Rat {
	sum := new(big.Rat)
	for _, e := range d.entries {
		sum.Add(sum, e.Probability)
	}
	return sum
}

// MaxState is the largest state in the support, or -1 when empty.
func (d Distribution) MaxState() int {
	if len(d.entries) == 0 {
		return -1
	}
	return d.entries[len(d.entries)-1].State
}

// Validate checks that every probability is positive and that they sum to exactly one.
func (d Distribution) Validate() error {
	if len(d.entries) == 0 {
		return fmt.Errorf("%w: empty distribution", ErrStructural)
	}
	for _, e := range d.entries {
		if e.Probability.Sign() <= 0 {
			return fmt.Errorf("%w: state %d has non-positive probability %s", ErrStructural, e.State, e.Probability.RatString())
		}
	}
	if sum := d.Sum(); sum.Cmp(ratOne) != 0 {
		return fmt.Errorf("%w: probabilities of %v sum to %s", ErrStructural, d, sum.RatString())
	}
	return nil
}

// Map sends every state through f and adds up the probabilities of states that land on the
// same image.
func (d Distribution) Map(f func(int) int) Distribution {
	if len(d.entries) == 1 {
		return Distribution{entries: []Entry{{State: f(d.entries[0].State), Probability: d.entries[0].Probability}}}
	}
	builder := NewDistributionBuilder()
	for _, e := range d.entries {
		builder.Add(f(e.State), e.Probability)
	}
	return builder.build()
}

func (d Distribution) Equal(other Distribution) bool {
	if len(d.entries) != len(other.entries) {
		return false
	}
	for i := range d.entries {
		if d.entries[i].State != other.entries[i].State || d.entries[i].Probability.Cmp(other.entries[i].Probability) != 0 {
			return false
		}
	}
	return true
}

// Compare orders distributions lexicographically by (state, probability) entries.
func (d Distribution) Compare(other Distribution) int {
	for i := 0; i < len(d.entries) && i < len(other.entries); i++ {
		a, b := d.entries[i], other.entries[i]
		if a.State != b.State {
			if a.State < b.State {
				return -1
			}
			return 1
		}
		if c := a.Probability.Cmp(b.Probability); c != 0 {
			return c
		}
	}
	switch {
	case len(d.entries) < len(other.entries):
		return -1
	case len(d.entries) > len(other.entries):
		return 1
	default:
		return 0
	}
}

func (d Distribution) Hash() uint32 {
	h := fnv1a.Init32
	for _, e := range d.entries {
		h = fnv1a.AddUint32(h, uint32(e.State))
		h = addWords(h, e.Probability.Num().Bits())
		h = addWords(h, e.Probability.Denom().Bits())
	}
	return h
}

// addWords hashes the magnitude of a normalised big.Int, length first so that adjacent
// numbers cannot run together.
func addWords(h uint32, words []big.Word) uint32 {
	h = fnv1a.AddUint32(h, uint32(len(words)))
	for _, w := range words {
		v := uint64(w)
		h = fnv1a.AddUint32(h, uint32(v))
		h = fnv1a.AddUint32(h, uint32(v>>32))
	}
	return h
}

// String renders d in aut syntax: "s1 p1 s2 p2 ... sk", the last probability being implied.
func (d Distribution) String() string {
	var builder strings.Builder
	for i, e := range d.entries {
		if i > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(strconv.Itoa(e.State))
		if i < len(d.entries)-1 {
			builder.WriteString(" ")
			builder.WriteString(e.Probability.RatString())
		}
	}
	return builder.String()
}

// DistributionHasher lets distributions key immutable maps.
type DistributionHasher struct{}

var _ immutable.Hasher[Distribution] = DistributionHasher{}

func (DistributionHasher) Hash(key Distribution) uint32 {
	return key.Hash()
}

func (DistributionHasher) Equal(a, b Distribution) bool {
	return a.Equal(b)
}

// DistributionBuilder accumulates probability mass per state in state order.
type DistributionBuilder struct {
	tree *redblacktree.Tree
}

func NewDistributionBuilder() *DistributionBuilder {
	return &DistributionBuilder{tree: redblacktree.NewWithIntComparator()}
}

// Add adds p to the mass of state. p is copied.
func (b *DistributionBuilder) Add(state int, p *big.Rat) {
	if existing, found := b.tree.Get(state); found {
		b.tree.Put(state, new(big.Rat).Add(existing.(*big.Rat), p))
		return
	}
	b.tree.Put(state, new(big.Rat).Set(p))
}

func (b *DistributionBuilder) Len() int {
	return b.tree.Size()
}

func (b *DistributionBuilder) build() Distribution {
	entries := make([]Entry, 0, b.tree.Size())
	it := b.tree.Iterator()
	for it.Next() {
		entries = append(entries, Entry{State: it.Key().(int), Probability: it.Value().(*big.Rat)})
	}
	return Distribution{entries: entries}
}

// Distribution returns the accumulated distribution after checking it is a valid one.
func (b *DistributionBuilder) Distribution() (Distribution, error) {
	d := b.build()
	if err := d.Validate(); err != nil {
		return Distribution{}, err
	}
	return d, nil
}
