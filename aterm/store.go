// Package aterm implements maximally shared terms. Every distinct term is stored once in a
// Store, so structural equality of live terms is handle equality.
//
// Handles returned by the Make* functions are owned references: the caller must eventually
// give them back with Release. Arguments passed to Make* are borrowed.
package aterm

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/segmentio/fasthash/fnv1a"
)

var (
	// ErrAllocationFailure is raised (by panic) when the store cannot hold another term.
	ErrAllocationFailure = errors.New("term store exhausted")
	// ErrFreedTerm is raised (by panic) when a handle that does not denote a live term is used.
	ErrFreedTerm = errors.New("use of freed or invalid term")
)

// Term is a handle to a term of a Store. The zero Term is invalid.
type Term uint32

// NoTerm is the invalid term handle.
const NoTerm Term = 0

type Kind uint8

const (
	KindFree Kind = iota
	KindAppl
	KindInt
	KindBigInt
	KindList
	KindEmptyList
)

func (k Kind) String() string {
	switch k {
	case KindAppl:
		return "appl"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindList:
		return "list"
	case KindEmptyList:
		return "emptylist"
	default:
		return "free"
	}
}

type node struct {
	kind Kind
	fun  AFun
	args []Term // children of an application; head and tail of a list cell
	ival int64
	bval string // sign byte followed by the multi-byte encoded magnitude
	refs int32
	hash uint32
	next Term // unique table chain
}

const (
	defaultCapacity    = 1 << 10
	defaultGCThreshold = 1 << 12
)

// Store owns all terms created through it. Table mutation is serialised by a mutex, but the
// store is intended to be confined to one goroutine.
type Store struct {
	lock sync.Mutex

	nodes    []node
	free     *bitset.BitSet
	freeHint uint
	live     int

	buckets []Term
	mask    uint32

	pending     []Term // nodes whose count reached zero since the last collection
	gcThreshold int
	maxTerms    int

	symbols     []symbol
	symbolIndex map[symbol]AFun

	collections int
	reclaimed   int
}

type StoreConfigFn func(s *Store)

// WithInitialCapacity sizes the arena and unique table for roughly n terms.
func WithInitialCapacity(n int) StoreConfigFn {
	return func(s *Store) {
		if n > 0 {
			s.nodes = make([]node, 1, n+1)
			s.resizeBuckets(nextPow2(n))
		}
	}
}

// WithGCThreshold sets how many released terms may be pending before construction triggers a
// collection. Zero disables automatic collection.
func WithGCThreshold(n int) StoreConfigFn {
	return func(s *Store) {
		s.gcThreshold = n
	}
}

// WithMaxTerms bounds the number of simultaneously stored terms.
func WithMaxTerms(n int) StoreConfigFn {
	return func(s *Store) {
		s.maxTerms = n
	}
}

func NewStore(configFns ...StoreConfigFn) *Store {
	s := &Store{
		nodes:       make([]node, 1, defaultCapacity),
		free:        bitset.New(0),
		gcThreshold: defaultGCThreshold,
		maxTerms:    math.MaxUint32 - 1,
		symbols:     []symbol{{}},
		symbolIndex: make(map[symbol]AFun),
	}
	s.resizeBuckets(defaultCapacity)
	for _, configFn := range configFns {
		configFn(s)
	}
	return s
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *Store) checkLive(t Term) *node {
	if t == NoTerm || int(t) >= len(s.nodes) || s.nodes[t].kind == KindFree {
		panic(fmt.Errorf("%w: handle %d", ErrFreedTerm, t))
	}
	return &s.nodes[t]
}

func hashNode(n *node) uint32 {
	h := fnv1a.AddUint32(fnv1a.Init32, uint32(n.kind))
	switch n.kind {
	case KindAppl:
		h = fnv1a.AddUint32(h, uint32(n.fun))
	case KindInt:
		h = fnv1a.AddUint32(h, uint32(n.ival))
		h = fnv1a.AddUint32(h, uint32(uint64(n.ival)>>32))
	case KindBigInt:
		h = fnv1a.AddString32(h, n.bval)
	}
	for _, arg := range n.args {
		h = fnv1a.AddUint32(h, uint32(arg))
	}
	return h
}

func sameNode(a, b *node) bool {
	if a.kind != b.kind || a.fun != b.fun || a.ival != b.ival || a.bval != b.bval || len(a.args) != len(b.args) {
		return false
	}
	for i := range a.args {
		if a.args[i] != b.args[i] {
			return false
		}
	}
	return true
}

// construct returns an owned reference to the unique node equal to proto.
func (s *Store) construct(proto node) Term {
	for _, arg := range proto.args {
		s.checkLive(arg)
	}
	proto.hash = hashNode(&proto)
	for t := s.buckets[proto.hash&s.mask]; t != NoTerm; t = s.nodes[t].next {
		if n := &s.nodes[t]; n.hash == proto.hash && sameNode(n, &proto) {
			n.refs++
			return t
		}
	}

	proto.args = append([]Term(nil), proto.args...)
	for _, arg := range proto.args {
		s.nodes[arg].refs++
	}
	if s.gcThreshold > 0 && len(s.pending) >= s.gcThreshold {
		s.collect()
	}

	t := s.allocate()
	proto.refs = 1
	idx := proto.hash & s.mask
	proto.next = s.buckets[idx]
	s.nodes[t] = proto
	s.buckets[idx] = t
	s.live++
	if s.live > len(s.buckets) {
		s.resizeBuckets(len(s.buckets) * 2)
	}
	return t
}

func (s *Store) allocate() Term {
	if slot, ok := s.free.NextSet(s.freeHint); ok {
		s.free.Clear(slot)
		s.freeHint = slot + 1
		return Term(slot)
	}
	if len(s.nodes) > s.maxTerms {
		panic(fmt.Errorf("%w: %d terms live", ErrAllocationFailure, s.live))
	}
	s.nodes = append(s.nodes, node{})
	return Term(len(s.nodes) - 1)
}

func (s *Store) resizeBuckets(size int) {
	s.buckets = make([]Term, size)
	s.mask = uint32(size - 1)
	for t := 1; t < len(s.nodes); t++ {
		n := &s.nodes[t]
		if n.kind == KindFree {
			continue
		}
		idx := n.hash & s.mask
		n.next = s.buckets[idx]
		s.buckets[idx] = Term(t)
	}
}

func (s *Store) unlink(t Term) {
	idx := s.nodes[t].hash & s.mask
	if s.buckets[idx] == t {
		s.buckets[idx] = s.nodes[t].next
		return
	}
	for prev := s.buckets[idx]; prev != NoTerm; prev = s.nodes[prev].next {
		if s.nodes[prev].next == t {
			s.nodes[prev].next = s.nodes[t].next
			return
		}
	}
	panic(fmt.Errorf("term %d missing from the unique table", t))
}

// MakeAppl returns the application of f to args. len(args) must equal the arity of f.
func (s *Store) MakeAppl(f AFun, args ...Term) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.makeAppl(f, args)
}

func (s *Store) makeAppl(f AFun, args []Term) Term {
	sym := s.symbolOf(f)
	if len(args) != sym.arity {
		panic(fmt.Errorf("symbol %s has arity %d, got %d arguments", sym.name, sym.arity, len(args)))
	}
	return s.construct(node{kind: KindAppl, fun: f, args: args})
}

// MakeConstant is shorthand for the application of a fresh arity-0 symbol name.
func (s *Store) MakeConstant(name string) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.makeAppl(s.symbolLocked(symbol{name: name}), nil)
}

func (s *Store) MakeInt(v int64) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.construct(node{kind: KindInt, ival: v})
}

// MakeBigInt stores x as a machine integer when it fits in an int64, and otherwise as a leaf
// holding its multi-byte encoded magnitude.
func (s *Store) MakeBigInt(x *big.Int) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.makeBigInt(x)
}

func (s *Store) makeBigInt(x *big.Int) Term {
	if x.IsInt64() {
		return s.construct(node{kind: KindInt, ival: x.Int64()})
	}
	enc := []byte{0}
	if x.Sign() < 0 {
		enc[0] = 1
	}
	enc = AppendMultiByteBig(enc, x)
	return s.construct(node{kind: KindBigInt, bval: string(enc)})
}

func (s *Store) EmptyList() Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.construct(node{kind: KindEmptyList})
}

// Cons prepends head to the list tail.
func (s *Store) Cons(head, tail Term) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cons(head, tail)
}

func (s *Store) cons(head, tail Term) Term {
	if k := s.checkLive(tail).kind; k != KindList && k != KindEmptyList {
		panic(fmt.Errorf("tail of a list cell must be a list, got %v", k))
	}
	return s.construct(node{kind: KindList, args: []Term{head, tail}})
}

func (s *Store) MakeList(elems ...Term) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.makeList(elems)
}

func (s *Store) makeList(elems []Term) Term {
	list := s.construct(node{kind: KindEmptyList})
	for i := len(elems) - 1; i >= 0; i-- {
		next := s.cons(elems[i], list)
		s.release(list)
		list = next
	}
	return list
}

// Protect takes an additional reference to t and returns it.
func (s *Store) Protect(t Term) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.checkLive(t).refs++
	return t
}

// Release gives back one reference to t. Once no references remain the term becomes eligible
// for collection; until then hash-consing may hand it out again.
func (s *Store) Release(t Term) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.release(t)
}

func (s *Store) release(t Term) {
	n := s.checkLive(t)
	if n.refs <= 0 {
		panic(fmt.Errorf("%w: term %d released more often than acquired", ErrFreedTerm, t))
	}
	n.refs--
	if n.refs == 0 {
		s.pending = append(s.pending, t)
	}
}

// Collect reclaims every unreferenced term, including children that become unreferenced as a
// consequence, and returns how many terms were freed.
func (s *Store) Collect() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.collect()
}

func (s *Store) collect() int {
	work := s.pending
	s.pending = nil
	freed := 0
	for len(work) > 0 {
		t := work[len(work)-1]
		work = work[:len(work)-1]
		n := &s.nodes[t]
		if n.kind == KindFree || n.refs != 0 {
			continue
		}
		s.unlink(t)
		for _, child := range n.args {
			c := &s.nodes[child]
			c.refs--
			if c.refs == 0 {
				work = append(work, child)
			}
		}
		*n = node{}
		s.free.Set(uint(t))
		if uint(t) < s.freeHint {
			s.freeHint = uint(t)
		}
		s.live--
		freed++
	}
	s.collections++
	s.reclaimed += freed
	return freed
}

func (s *Store) Kind(t Term) Kind {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.checkLive(t).kind
}

// Fun returns the head symbol of an application.
func (s *Store) Fun(t Term) AFun {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := s.checkLive(t)
	if n.kind != KindAppl {
		panic(fmt.Errorf("term %d is a %v, not an application", t, n.kind))
	}
	return n.fun
}

// Arity is the number of children of t: the symbol arity for applications, 2 for a list cell
// and 0 for every leaf.
func (s *Store) Arity(t Term) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.checkLive(t).args)
}

// Arg returns the i'th child of t. The result is borrowed from t.
func (s *Store) Arg(t Term, i int) Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.checkLive(t).args[i]
}

// Args returns a copy of the children of t.
func (s *Store) Args(t Term) []Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Term(nil), s.checkLive(t).args...)
}

func (s *Store) IntValue(t Term) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := s.checkLive(t)
	if n.kind != KindInt {
		panic(fmt.Errorf("term %d is a %v, not an int", t, n.kind))
	}
	return n.ival
}

// BigValue returns the value of an integer leaf of either representation.
func (s *Store) BigValue(t Term) *big.Int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.bigValue(t)
}

func (s *Store) bigValue(t Term) *big.Int {
	n := s.checkLive(t)
	switch n.kind {
	case KindInt:
		return big.NewInt(n.ival)
	case KindBigInt:
		v, _, err := DecodeMultiByteBig([]byte(n.bval[1:]))
		if err != nil {
			panic(err)
		}
		if n.bval[0] == 1 {
			v.Neg(v)
		}
		return v
	default:
		panic(fmt.Errorf("term %d is a %v, not an integer", t, n.kind))
	}
}

// IsInteger reports whether t is an integer leaf of either representation.
func (s *Store) IsInteger(t Term) bool {
	k := s.Kind(t)
	return k == KindInt || k == KindBigInt
}

// ListElems returns the elements of the list t. They are borrowed from t.
func (s *Store) ListElems(t Term) []Term {
	s.lock.Lock()
	defer s.lock.Unlock()
	var elems []Term
	for {
		n := s.checkLive(t)
		switch n.kind {
		case KindEmptyList:
			return elems
		case KindList:
			elems = append(elems, n.args[0])
			t = n.args[1]
		default:
			panic(fmt.Errorf("term %d is a %v, not a list", t, n.kind))
		}
	}
}

func (s *Store) RefCount(t Term) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return int(s.checkLive(t).refs)
}

// Hash returns the structural hash of t, stable for the lifetime of t.
func (s *Store) Hash(t Term) uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.checkLive(t).hash
}

// IsLive reports whether t currently denotes a stored term.
func (s *Store) IsLive(t Term) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return t != NoTerm && int(t) < len(s.nodes) && s.nodes[t].kind != KindFree
}

// Live is the number of stored terms, including unreferenced ones not yet collected.
func (s *Store) Live() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.live
}

type Stats struct {
	Live        int
	Capacity    int
	Pending     int
	Symbols     int
	Collections int
	Reclaimed   int
}

func (s *Store) Stats() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Stats{
		Live:        s.live,
		Capacity:    len(s.nodes) - 1,
		Pending:     len(s.pending),
		Symbols:     len(s.symbols) - 1,
		Collections: s.collections,
		Reclaimed:   s.reclaimed,
	}
}

func (st Stats) String() string {
	return fmt.Sprintf("%d live terms (capacity %d, %d pending), %d symbols, %d collections reclaimed %d terms",
		st.Live, st.Capacity, st.Pending, st.Symbols, st.Collections, st.Reclaimed)
}
