// Package lts holds labelled transition systems whose transitions lead to probability
// distributions over states. A plain LTS is the special case where every distribution is a
// single state with probability one.
package lts

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/immutable"
	"go.uber.org/multierr"

	"github.com/pmonson711/mCRL2/aterm"
)

var (
	ErrMalformedInput = errors.New("malformed input")
	ErrStructural     = errors.New("structural error")
)

// Transition goes from a state, under a label, to a probabilistic state. Label and To are
// indices into the label and probabilistic state tables of the owning LTS.
type Transition struct {
	From  int
	Label int
	To    int
}

// LTS is a probabilistic labelled transition system. The LTS holds a reference on each of
// its label terms until Close.
type LTS struct {
	store *aterm.Store

	numStates   int
	labels      []aterm.Term
	labelIndex  map[aterm.Term]int
	transitions []Transition
	probStates  []Distribution
	probIndex   *immutable.Map[Distribution, int]
	initial     Distribution

	outgoing [][]int
}

func New(store *aterm.Store) *LTS {
	return &LTS{
		store:      store,
		labelIndex: make(map[aterm.Term]int),
		probIndex:  immutable.NewMap[Distribution, int](DistributionHasher{}),
	}
}

func (l *LTS) Store() *aterm.Store {
	return l.store
}

// SetNumStates resizes the state space. It may not drop a state that is still referenced.
func (l *LTS) SetNumStates(n int) error {
	if n < l.numStates {
		needed := l.initial.MaxState() + 1
		for _, tr := range l.transitions {
			if tr.From+1 > needed {
				needed = tr.From + 1
			}
		}
		for _, d := range l.probStates {
			if d.MaxState()+1 > needed {
				needed = d.MaxState() + 1
			}
		}
		if n < needed {
			return fmt.Errorf("%w: cannot shrink to %d states, state %d is in use", ErrStructural, n, needed-1)
		}
	}
	l.numStates = n
	l.outgoing = nil
	return nil
}

// AddState adds a fresh state and returns its index.
func (l *LTS) AddState() int {
	l.numStates++
	l.outgoing = nil
	return l.numStates - 1
}

// AddLabel returns the index of label, adding it if new. The term is borrowed; the LTS takes
// its own reference.
func (l *LTS) AddLabel(label aterm.Term) int {
	if idx, ok := l.labelIndex[label]; ok {
		return idx
	}
	l.store.Protect(label)
	l.labels = append(l.labels, label)
	l.labelIndex[label] = len(l.labels) - 1
	return len(l.labels) - 1
}

// AddLabelString parses text as a term and adds it as a label. Text that is not term syntax,
// such as "x := 1", becomes a quoted constant.
func (l *LTS) AddLabelString(text string) int {
	term, err := l.store.Parse(text)
	if err != nil {
		term = l.store.MakeAppl(l.store.QuotedSymbol(text, 0))
	}
	idx := l.AddLabel(term)
	l.store.Release(term)
	return idx
}

func (l *LTS) checkDistribution(d Distribution) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, e := range d.entries {
		if e.State < 0 || e.State >= l.numStates {
			return fmt.Errorf("%w: state %d out of range [0, %d)", ErrStructural, e.State, l.numStates)
		}
	}
	return nil
}

// AddProbabilisticState returns the index of d, adding it if no equal distribution is known.
func (l *LTS) AddProbabilisticState(d Distribution) (int, error) {
	if idx, ok := l.probIndex.Get(d); ok {
		return idx, nil
	}
	if err := l.checkDistribution(d); err != nil {
		return 0, err
	}
	l.probStates = append(l.probStates, d)
	l.probIndex = l.probIndex.Set(d, len(l.probStates)-1)
	return len(l.probStates) - 1, nil
}

func (l *LTS) AddTransition(from, label, to int) error {
	switch {
	case from < 0 || from >= l.numStates:
		return fmt.Errorf("%w: source state %d out of range [0, %d)", ErrStructural, from, l.numStates)
	case label < 0 || label >= len(l.labels):
		return fmt.Errorf("%w: label %d out of range [0, %d)", ErrStructural, label, len(l.labels))
	case to < 0 || to >= len(l.probStates):
		return fmt.Errorf("%w: probabilistic state %d out of range [0, %d)", ErrStructural, to, len(l.probStates))
	}
	l.transitions = append(l.transitions, Transition{From: from, Label: label, To: to})
	l.outgoing = nil
	return nil
}

// AddPlainTransition adds a transition reaching target with probability one.
func (l *LTS) AddPlainTransition(from, label, target int) error {
	to, err := l.AddProbabilisticState(Dirac(target))
	if err != nil {
		return err
	}
	return l.AddTransition(from, label, to)
}

func (l *LTS) SetInitial(d Distribution) error {
	if err := l.checkDistribution(d); err != nil {
		return fmt.Errorf("initial distribution: %w", err)
	}
	l.initial = d
	return nil
}

func (l *LTS) NumStates() int {
	return l.numStates
}

func (l *LTS) NumTransitions() int {
	return len(l.transitions)
}

func (l *LTS) NumProbabilisticStates() int {
	return len(l.probStates)
}

func (l *LTS) NumLabels() int {
	return len(l.labels)
}

// Transitions returns the transitions in insertion order. The slice must not be modified.
func (l *LTS) Transitions() []Transition {
	return l.transitions
}

// Outgoing returns the transitions leaving s.
func (l *LTS) Outgoing(s int) []Transition {
	if l.outgoing == nil {
		l.outgoing = make([][]int, l.numStates)
		for i, tr := range l.transitions {
			l.outgoing[tr.From] = append(l.outgoing[tr.From], i)
		}
	}
	out := make([]Transition, len(l.outgoing[s]))
	for i, idx := range l.outgoing[s] {
		out[i] = l.transitions[idx]
	}
	return out
}

func (l *LTS) ProbabilisticState(i int) Distribution {
	return l.probStates[i]
}

func (l *LTS) Initial() Distribution {
	return l.initial
}

func (l *LTS) Label(i int) aterm.Term {
	return l.labels[i]
}

// LabelString renders label i the way the aut format expects it: quoted constants by their
// bare name, other terms in term syntax.
func (l *LTS) LabelString(i int) string {
	term := l.labels[i]
	if l.store.Kind(term) == aterm.KindAppl && l.store.Arity(term) == 0 && l.store.SymbolQuoted(l.store.Fun(term)) {
		return l.store.SymbolName(l.store.Fun(term))
	}
	return l.store.String(term)
}

// IsPlain reports whether every distribution, the initial one included, is a single state.
func (l *LTS) IsPlain() bool {
	if !l.initial.IsDirac() {
		return false
	}
	for _, d := range l.probStates {
		if !d.IsDirac() {
			return false
		}
	}
	return true
}

// Validate re-checks every invariant of l and reports all breaches together.
func (l *LTS) Validate() error {
	var err error
	if verr := l.checkDistribution(l.initial); verr != nil {
		err = multierr.Append(err, fmt.Errorf("initial distribution: %w", verr))
	}
	for i, d := range l.probStates {
		if verr := l.checkDistribution(d); verr != nil {
			err = multierr.Append(err, fmt.Errorf("probabilistic state %d: %w", i, verr))
		}
	}
	for _, tr := range l.transitions {
		if tr.From < 0 || tr.From >= l.numStates || tr.Label < 0 || tr.Label >= len(l.labels) || tr.To < 0 || tr.To >= len(l.probStates) {
			err = multierr.Append(err, fmt.Errorf("%w: transition %v out of range", ErrStructural, tr))
		}
	}
	return err
}

// ReplaceWith moves the contents of other into l, releasing what l held. other is left empty.
func (l *LTS) ReplaceWith(other *LTS) {
	if other.store != l.store {
		panic("lts: ReplaceWith across different term stores")
	}
	l.Close()
	*l = *other
	*other = *New(l.store)
}

// Close releases the label references held by l and empties it.
func (l *LTS) Close() {
	for _, label := range l.labels {
		l.store.Release(label)
	}
	*l = *New(l.store)
}

func (l *LTS) String() string {
	return fmt.Sprintf("%d states, %d transitions, %d probabilistic states, %d labels",
		l.numStates, len(l.transitions), len(l.probStates), len(l.labels))
}
