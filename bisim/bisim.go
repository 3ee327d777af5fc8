// Package bisim reduces labelled transition systems modulo probabilistic bisimulation by
// signature based partition refinement.
//
// Each round computes, against the partition of the previous round, the signature of every
// state: the set of (label, distribution over blocks) pairs it can take. States are then
// regrouped by (old block, signature). Refinement ends at the first round that creates no
// block.
package bisim

import (
	"errors"
	"log"

	"github.com/pmonson711/mCRL2/aterm"
	"github.com/pmonson711/mCRL2/hashmap"
	"github.com/pmonson711/mCRL2/lts"
	"github.com/pmonson711/mCRL2/trace"
)

var ErrNotPlain = errors.New("transition system is not plain")

type Status int

const (
	StatusStable Status = iota
	StatusIterationLimitExceeded
)

func (s Status) String() string {
	switch s {
	case StatusStable:
		return "stable"
	case StatusIterationLimitExceeded:
		return "not fully reduced"
	default:
		panic("unknown status")
	}
}

// Result reports how refinement ended.
type Result struct {
	Status Status
	Rounds int
	Blocks int
}

type config struct {
	maxRounds int
	recorder  trace.Recorder
	input     string
}

type ReducerConfigFn func(cfg *config)

// WithMaxRounds stops refinement after n rounds. The partition is then sound but possibly
// coarser than bisimilarity allows; the result carries StatusIterationLimitExceeded.
func WithMaxRounds(n int) ReducerConfigFn {
	return func(cfg *config) {
		cfg.maxRounds = n
	}
}

// WithRecorder records one trace event per refinement round.
func WithRecorder(recorder trace.Recorder) ReducerConfigFn {
	return func(cfg *config) {
		cfg.recorder = recorder
	}
}

// WithInputName names the reduced system in trace events and log lines.
func WithInputName(name string) ReducerConfigFn {
	return func(cfg *config) {
		cfg.input = name
	}
}

func makeConfig(configFns []ReducerConfigFn) config {
	var cfg config
	for _, fn := range configFns {
		fn(&cfg)
	}
	return cfg
}

// Refine computes the probabilistic bisimulation partition of l.
func Refine(l *lts.LTS, configFns ...ReducerConfigFn) (*Partition, Result) {
	outgoing := outgoingOf(l)
	return refine(l.NumStates(), "probabilistic", makeConfig(configFns), func(p *Partition, s int) signature {
		steps := make([]step, 0, len(outgoing[s]))
		for _, tr := range outgoing[s] {
			steps = append(steps, step{
				label:  tr.Label,
				target: l.ProbabilisticState(tr.To).Map(p.Block),
			})
		}
		return canonical(p.Block(s), steps)
	})
}

func outgoingOf(l *lts.LTS) [][]lts.Transition {
	outgoing := make([][]lts.Transition, l.NumStates())
	for s := range outgoing {
		outgoing[s] = l.Outgoing(s)
	}
	return outgoing
}

func refine[K hashmap.Hashable[K]](n int, reducer string, cfg config, signatureOf func(p *Partition, s int) K) (*Partition, Result) {
	acc := trace.EventState{Recorder: cfg.recorder, Reducer: reducer, Input: cfg.input}
	p := NewPartition(n)
	index := hashmap.New[K, int]()
	rounds := 0
	for {
		if cfg.maxRounds > 0 && rounds == cfg.maxRounds {
			log.Printf("%s reduction of %q not fully reduced after %d rounds (%d blocks)", reducer, cfg.input, rounds, p.NumBlocks())
			acc.BeginEvent()
			acc.RecordStable(false)
			acc.CommitEvent(rounds, p.NumBlocks())
			return p, Result{Status: StatusIterationLimitExceeded, Rounds: rounds, Blocks: p.NumBlocks()}
		}
		rounds++
		acc.BeginEvent()

		index.Clear()
		next := &Partition{blockOf: make([]int, n)}
		for s := 0; s < n; s++ {
			// the key includes the old block, so blocks split and never merge
			b, _ := index.GetOrInsert(signatureOf(p, s), index.Len())
			next.blockOf[s] = b
		}
		next.numBlocks = index.Len()
		if next.numBlocks < p.numBlocks {
			panic("refinement merged blocks")
		}
		stable := next.numBlocks == p.numBlocks
		if acc.HasRecorder() {
			recordSplits(&acc, p, next)
			if stable {
				acc.RecordStable(true)
			}
		}
		acc.CommitEvent(rounds, next.numBlocks)
		p = next
		if stable {
			return p, Result{Status: StatusStable, Rounds: rounds, Blocks: p.NumBlocks()}
		}
	}
}

func recordSplits(acc *trace.EventState, prev, next *Partition) {
	parts := make([][]int, prev.numBlocks)
	sizes := make(map[int]int)
	for s, b := range next.blockOf {
		if sizes[b] == 0 {
			parts[prev.blockOf[s]] = append(parts[prev.blockOf[s]], b)
		}
		sizes[b]++
	}
	for old, into := range parts {
		if len(into) < 2 {
			continue
		}
		counts := make([]int, len(into))
		for i, b := range into {
			counts[i] = sizes[b]
		}
		acc.RecordSplit(old, into, counts)
	}
}

// Reduce replaces l by its quotient modulo probabilistic bisimulation.
func Reduce(l *lts.LTS, configFns ...ReducerConfigFn) (Result, error) {
	release := protectLabels(l)
	defer release()

	p, result := Refine(l, configFns...)
	q, err := Quotient(l, p)
	if err != nil {
		return result, err
	}
	l.ReplaceWith(q)
	return result, nil
}

// protectLabels holds an extra reference on every label of l until the returned func runs.
func protectLabels(l *lts.LTS) func() {
	store := l.Store()
	labels := make([]aterm.Term, l.NumLabels())
	for i := range labels {
		labels[i] = store.Protect(l.Label(i))
	}
	return func() {
		for _, label := range labels {
			store.Release(label)
		}
	}
}
