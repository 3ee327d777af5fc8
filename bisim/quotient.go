package bisim

import (
	"fmt"

	"github.com/benbjohnson/immutable"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/pmonson711/mCRL2/lts"
)

type transitionHasher struct{}

var _ immutable.Hasher[lts.Transition] = transitionHasher{}

func (transitionHasher) Hash(key lts.Transition) uint32 {
	h := fnv1a.HashUint32(uint32(key.From))
	h = fnv1a.AddUint32(h, uint32(key.Label))
	return fnv1a.AddUint32(h, uint32(key.To))
}

func (transitionHasher) Equal(a, b lts.Transition) bool {
	return a == b
}

// Quotient builds the LTS with one state per block of p. Each transition is mapped to its
// source block and the distribution of its target over blocks; repeats are dropped. The result
// shares the term store of l and holds its own label references.
func Quotient(l *lts.LTS, p *Partition) (*lts.LTS, error) {
	if p.NumStates() != l.NumStates() {
		panic(fmt.Sprintf("partition of %d states applied to an LTS of %d states", p.NumStates(), l.NumStates()))
	}
	q := lts.New(l.Store())
	if err := q.SetNumStates(p.NumBlocks()); err != nil {
		return nil, err
	}
	for i := 0; i < l.NumLabels(); i++ {
		q.AddLabel(l.Label(i))
	}
	if l.Initial().Len() > 0 {
		if err := q.SetInitial(l.Initial().Map(p.Block)); err != nil {
			q.Close()
			return nil, err
		}
	}

	seen := immutable.NewMap[lts.Transition, struct{}](transitionHasher{})
	for _, tr := range l.Transitions() {
		to, err := q.AddProbabilisticState(l.ProbabilisticState(tr.To).Map(p.Block))
		if err != nil {
			q.Close()
			return nil, err
		}
		mapped := lts.Transition{From: p.Block(tr.From), Label: tr.Label, To: to}
		if _, ok := seen.Get(mapped); ok {
			continue
		}
		seen = seen.Set(mapped, struct{}{})
		if err := q.AddTransition(mapped.From, mapped.Label, mapped.To); err != nil {
			q.Close()
			return nil, err
		}
	}
	return q, nil
}
