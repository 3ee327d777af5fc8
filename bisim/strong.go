package bisim

import (
	"fmt"

	"github.com/pmonson711/mCRL2/lts"
)

// RefineStrong computes the strong bisimulation partition of a plain LTS, treating each
// transition as a labelled edge to its single target.
func RefineStrong(l *lts.LTS, configFns ...ReducerConfigFn) (*Partition, Result, error) {
	if !l.IsPlain() {
		return nil, Result{}, fmt.Errorf("%w: strong bisimulation needs single target states", ErrNotPlain)
	}
	outgoing := outgoingOf(l)
	targets := make([]int, l.NumProbabilisticStates())
	for i := range targets {
		targets[i], _ = l.ProbabilisticState(i).DiracState()
	}
	p, result := refine(l.NumStates(), "strong", makeConfig(configFns), func(p *Partition, s int) strongSignature {
		steps := make([]strongStep, len(outgoing[s]))
		for i, tr := range outgoing[s] {
			steps[i] = strongStep{label: tr.Label, block: p.Block(targets[tr.To])}
		}
		return canonicalStrong(p.Block(s), steps)
	})
	return p, result, nil
}

// ReduceStrong replaces a plain l by its quotient modulo strong bisimulation.
func ReduceStrong(l *lts.LTS, configFns ...ReducerConfigFn) (Result, error) {
	release := protectLabels(l)
	defer release()

	p, result, err := RefineStrong(l, configFns...)
	if err != nil {
		return result, err
	}
	q, err := Quotient(l, p)
	if err != nil {
		return result, err
	}
	l.ReplaceWith(q)
	return result, nil
}
