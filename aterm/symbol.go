package aterm

import "fmt"

// AFun identifies a function symbol: a name, an arity and whether the name was written quoted.
// AFun values are only meaningful for the Store that created them.
type AFun uint32

// NoSymbol is never returned by Store.Symbol.
const NoSymbol AFun = 0

type symbol struct {
	name   string
	arity  int
	quoted bool
}

// Symbol interns the function symbol name/arity.
func (s *Store) Symbol(name string, arity int) AFun {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.symbolLocked(symbol{name: name, arity: arity})
}

// QuotedSymbol interns a symbol whose name is printed between double quotes. Labels that are
// not term syntax are kept as quoted constants.
func (s *Store) QuotedSymbol(name string, arity int) AFun {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.symbolLocked(symbol{name: name, arity: arity, quoted: true})
}

func (s *Store) symbolLocked(sym symbol) AFun {
	if sym.arity < 0 {
		panic(fmt.Errorf("negative arity %d for symbol %q", sym.arity, sym.name))
	}
	if f, ok := s.symbolIndex[sym]; ok {
		return f
	}
	f := AFun(len(s.symbols))
	s.symbols = append(s.symbols, sym)
	s.symbolIndex[sym] = f
	return f
}

func (s *Store) symbolOf(f AFun) symbol {
	if f == NoSymbol || int(f) >= len(s.symbols) {
		panic(fmt.Errorf("unknown function symbol %d", f))
	}
	return s.symbols[f]
}

// SymbolName returns the name of f.
func (s *Store) SymbolName(f AFun) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.symbolOf(f).name
}

// SymbolArity returns the arity of f.
func (s *Store) SymbolArity(f AFun) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.symbolOf(f).arity
}

// SymbolQuoted reports whether f was interned with QuotedSymbol.
func (s *Store) SymbolQuoted(f AFun) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.symbolOf(f).quoted
}
