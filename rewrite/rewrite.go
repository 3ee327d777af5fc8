// Package rewrite normalises terms with an innermost strategy: arguments first, then built-in
// arithmetic, then user rules at the root, repeated until nothing applies.
package rewrite

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/multierr"

	"github.com/pmonson711/mCRL2/aterm"
)

var (
	ErrUnboundVariable = errors.New("unbound variable")
	ErrInvalidRule     = errors.New("invalid rule")
)

// Rule rewrites instances of Lhs to Rhs. Variables are the constants named in Vars.
type Rule struct {
	Lhs, Rhs aterm.Term
	Vars     []string
}

func NewRule(lhs, rhs aterm.Term, vars ...string) Rule {
	return Rule{Lhs: lhs, Rhs: rhs, Vars: vars}
}

type compiledRule struct {
	lhs, rhs aterm.Term
}

type Rewriter struct {
	store *aterm.Store

	pending []Rule
	acNames []string

	rules map[aterm.AFun][]compiledRule
	vars  map[aterm.AFun]bool
	ac    map[aterm.AFun]bool
	memo  map[aterm.Term]aterm.Term

	trueTerm, falseTerm aterm.Term
}

type RewriterConfigFn func(r *Rewriter)

func WithRules(rules ...Rule) RewriterConfigFn {
	return func(r *Rewriter) {
		r.pending = append(r.pending, rules...)
	}
}

// WithAC declares binary symbols as associative and commutative. Their nested applications are
// flattened and their arguments put in structural order.
func WithAC(names ...string) RewriterConfigFn {
	return func(r *Rewriter) {
		r.acNames = append(r.acNames, names...)
	}
}

// New prepares a rewriter over store. It holds references on its rules and memoised normal
// forms until Close.
func New(store *aterm.Store, configFns ...RewriterConfigFn) (*Rewriter, error) {
	r := &Rewriter{
		store: store,
		rules: make(map[aterm.AFun][]compiledRule),
		vars:  make(map[aterm.AFun]bool),
		ac:    make(map[aterm.AFun]bool),
		memo:  make(map[aterm.Term]aterm.Term),
	}
	for _, fn := range configFns {
		fn(r)
	}
	for _, name := range r.acNames {
		r.ac[store.Symbol(name, 2)] = true
	}

	var err error
	for _, rule := range r.pending {
		for _, name := range rule.Vars {
			r.vars[store.Symbol(name, 0)] = true
		}
	}
	for _, rule := range r.pending {
		err = multierr.Append(err, r.addRule(rule))
	}
	r.pending = nil
	if err != nil {
		r.Close()
		return nil, err
	}
	r.trueTerm = store.MakeConstant("true")
	r.falseTerm = store.MakeConstant("false")
	return r, nil
}

func (r *Rewriter) isVar(t aterm.Term) bool {
	return r.store.Kind(t) == aterm.KindAppl && r.store.Arity(t) == 0 && r.vars[r.store.Fun(t)]
}

func (r *Rewriter) varsOf(t aterm.Term, into map[aterm.AFun]bool) {
	stack := []aterm.Term{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.isVar(cur) {
			into[r.store.Fun(cur)] = true
			continue
		}
		switch r.store.Kind(cur) {
		case aterm.KindAppl, aterm.KindList:
			stack = append(stack, r.store.Args(cur)...)
		}
	}
}

func (r *Rewriter) addRule(rule Rule) error {
	s := r.store
	if s.Kind(rule.Lhs) != aterm.KindAppl || r.isVar(rule.Lhs) {
		return fmt.Errorf("%w: left-hand side %s is not an application", ErrInvalidRule, s.String(rule.Lhs))
	}
	lhsVars, rhsVars := make(map[aterm.AFun]bool), make(map[aterm.AFun]bool)
	r.varsOf(rule.Lhs, lhsVars)
	r.varsOf(rule.Rhs, rhsVars)
	for v := range rhsVars {
		if !lhsVars[v] {
			return fmt.Errorf("%w: %s in %s -> %s", ErrUnboundVariable, s.SymbolName(v), s.String(rule.Lhs), s.String(rule.Rhs))
		}
	}
	head := s.Fun(rule.Lhs)
	r.rules[head] = append(r.rules[head], compiledRule{lhs: s.Protect(rule.Lhs), rhs: s.Protect(rule.Rhs)})
	return nil
}

// Normalize returns an owned reference to the normal form of t, which is borrowed.
func (r *Rewriter) Normalize(t aterm.Term) aterm.Term {
	if nf, ok := r.memo[t]; ok {
		return r.store.Protect(nf)
	}
	s := r.store
	var result aterm.Term
	switch s.Kind(t) {
	case aterm.KindAppl:
		args := s.Args(t)
		for i, arg := range args {
			args[i] = r.Normalize(arg)
		}
		cur := s.MakeAppl(s.Fun(t), args...)
		releaseAll(s, args)
		result = r.rewriteRoot(cur)
	case aterm.KindList:
		elems := s.ListElems(t)
		for i, elem := range elems {
			elems[i] = r.Normalize(elem)
		}
		result = s.MakeList(elems...)
		releaseAll(s, elems)
	default:
		result = s.Protect(t)
	}
	r.memo[s.Protect(t)] = s.Protect(result)
	return result
}

// rewriteRoot takes an application with normal arguments and returns its normal form. Both
// are owned.
func (r *Rewriter) rewriteRoot(t aterm.Term) aterm.Term {
	s := r.store
	if r.ac[s.Fun(t)] {
		flat := r.flattenAC(t)
		s.Release(t)
		t = flat
		if s.Kind(t) != aterm.KindAppl {
			return t
		}
	}
	if out, ok := r.builtin(t); ok {
		s.Release(t)
		return out
	}
	for _, rule := range r.rules[s.Fun(t)] {
		subst := make(map[aterm.AFun]aterm.Term)
		if !r.match(rule.lhs, t, subst) {
			continue
		}
		out := r.instantiate(rule.rhs, subst)
		s.Release(t)
		nf := r.Normalize(out)
		s.Release(out)
		return nf
	}
	return t
}

func (r *Rewriter) match(pattern, t aterm.Term, subst map[aterm.AFun]aterm.Term) bool {
	s := r.store
	if r.isVar(pattern) {
		v := s.Fun(pattern)
		if bound, ok := subst[v]; ok {
			return bound == t
		}
		subst[v] = t
		return true
	}
	kind := s.Kind(pattern)
	if kind != s.Kind(t) {
		return false
	}
	switch kind {
	case aterm.KindAppl:
		if s.Fun(pattern) != s.Fun(t) {
			return false
		}
		for i := 0; i < s.Arity(pattern); i++ {
			if !r.match(s.Arg(pattern, i), s.Arg(t, i), subst) {
				return false
			}
		}
		return true
	case aterm.KindList:
		return r.match(s.Arg(pattern, 0), s.Arg(t, 0), subst) && r.match(s.Arg(pattern, 1), s.Arg(t, 1), subst)
	default:
		return pattern == t
	}
}

func (r *Rewriter) instantiate(t aterm.Term, subst map[aterm.AFun]aterm.Term) aterm.Term {
	s := r.store
	if r.isVar(t) {
		return s.Protect(subst[s.Fun(t)])
	}
	switch s.Kind(t) {
	case aterm.KindAppl:
		args := s.Args(t)
		for i, arg := range args {
			args[i] = r.instantiate(arg, subst)
		}
		out := s.MakeAppl(s.Fun(t), args...)
		releaseAll(s, args)
		return out
	case aterm.KindList:
		head := r.instantiate(s.Arg(t, 0), subst)
		tail := r.instantiate(s.Arg(t, 1), subst)
		out := s.Cons(head, tail)
		s.Release(head)
		s.Release(tail)
		return out
	default:
		return s.Protect(t)
	}
}

// flattenAC collects the operands of nested applications of the AC symbol at the root of t,
// folds integer operands of plus and times, and rebuilds the rest right-nested in structural
// order. The result is owned; t stays owned by the caller.
func (r *Rewriter) flattenAC(t aterm.Term) aterm.Term {
	s := r.store
	f := s.Fun(t)
	name := s.SymbolName(f)

	var operands []aterm.Term
	var folded *big.Int
	stack := []aterm.Term{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case s.Kind(cur) == aterm.KindAppl && s.Fun(cur) == f:
			stack = append(stack, s.Arg(cur, 1), s.Arg(cur, 0))
		case s.IsInteger(cur) && (name == "plus" || name == "times"):
			v := s.BigValue(cur)
			switch {
			case folded == nil:
				folded = v
			case name == "plus":
				folded.Add(folded, v)
			default:
				folded.Mul(folded, v)
			}
		default:
			operands = append(operands, cur)
		}
	}
	sort.SliceStable(operands, func(i, j int) bool {
		return s.Compare(operands[i], operands[j]) < 0
	})

	owned := make([]aterm.Term, 0, len(operands)+1)
	if folded != nil {
		owned = append(owned, s.MakeBigInt(folded))
	}
	for _, op := range operands {
		owned = append(owned, s.Protect(op))
	}
	result := owned[len(owned)-1]
	for i := len(owned) - 2; i >= 0; i-- {
		next := s.MakeAppl(f, owned[i], result)
		s.Release(owned[i])
		s.Release(result)
		result = next
	}
	return result
}

// builtin evaluates arithmetic and comparisons on integer arguments.
func (r *Rewriter) builtin(t aterm.Term) (aterm.Term, bool) {
	s := r.store
	if s.Arity(t) != 2 {
		return aterm.NoTerm, false
	}
	a, b := s.Arg(t, 0), s.Arg(t, 1)
	name := s.SymbolName(s.Fun(t))
	if name == "eq" && a == b {
		return s.Protect(r.trueTerm), true
	}
	if !s.IsInteger(a) || !s.IsInteger(b) {
		return aterm.NoTerm, false
	}
	x, y := s.BigValue(a), s.BigValue(b)
	switch name {
	case "plus":
		return s.MakeBigInt(x.Add(x, y)), true
	case "times":
		return s.MakeBigInt(x.Mul(x, y)), true
	case "minus":
		return s.MakeBigInt(x.Sub(x, y)), true
	case "eq":
		return r.boolean(x.Cmp(y) == 0), true
	case "lt":
		return r.boolean(x.Cmp(y) < 0), true
	default:
		return aterm.NoTerm, false
	}
}

func (r *Rewriter) boolean(v bool) aterm.Term {
	if v {
		return r.store.Protect(r.trueTerm)
	}
	return r.store.Protect(r.falseTerm)
}

// Close releases every reference held by r.
func (r *Rewriter) Close() {
	s := r.store
	for t, nf := range r.memo {
		s.Release(t)
		s.Release(nf)
	}
	r.memo = make(map[aterm.Term]aterm.Term)
	for head, rules := range r.rules {
		for _, rule := range rules {
			s.Release(rule.lhs)
			s.Release(rule.rhs)
		}
		delete(r.rules, head)
	}
	if r.trueTerm != aterm.NoTerm {
		s.Release(r.trueTerm)
		s.Release(r.falseTerm)
		r.trueTerm, r.falseTerm = aterm.NoTerm, aterm.NoTerm
	}
}

func releaseAll(s *aterm.Store, terms []aterm.Term) {
	for _, t := range terms {
		s.Release(t)
	}
}
