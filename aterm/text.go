package aterm

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// String renders t in the textual term syntax accepted by Parse.
func (s *Store) String(t Term) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	var builder strings.Builder
	s.writeTerm(&builder, t)
	return builder.String()
}

func (s *Store) writeTerm(builder *strings.Builder, t Term) {
	n := s.checkLive(t)
	switch n.kind {
	case KindAppl:
		sym := s.symbols[n.fun]
		writeSymbolName(builder, sym)
		if len(n.args) > 0 {
			builder.WriteString("(")
			for i, arg := range n.args {
				if i > 0 {
					builder.WriteString(",")
				}
				s.writeTerm(builder, arg)
			}
			builder.WriteString(")")
		}
	case KindInt:
		builder.WriteString(strconv.FormatInt(n.ival, 10))
	case KindBigInt:
		builder.WriteString(s.bigValue(t).String())
	case KindEmptyList:
		builder.WriteString("[]")
	case KindList:
		builder.WriteString("[")
		first := true
		for n.kind == KindList {
			if !first {
				builder.WriteString(",")
			}
			first = false
			s.writeTerm(builder, n.args[0])
			n = &s.nodes[n.args[1]]
		}
		builder.WriteString("]")
	}
}

func writeSymbolName(builder *strings.Builder, sym symbol) {
	if sym.quoted || needsQuotes(sym.name) {
		builder.WriteString(strconv.Quote(sym.name))
	} else {
		builder.WriteString(sym.name)
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '[', ']', ',', '"', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func needsQuotes(name string) bool {
	if name == "" {
		return true
	}
	if c := name[0]; c == '-' || (c >= '0' && c <= '9') {
		return true
	}
	for i := 0; i < len(name); i++ {
		if isDelimiter(name[i]) {
			return true
		}
	}
	return false
}

type parser struct {
	s     *Store
	input string
	pos   int
}

// Parse reads one term in textual syntax: f(t1,...,tn), constants, "quoted" symbol names,
// integers of any size and lists [t1,...,tn].
func (s *Store) Parse(input string) (Term, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p := &parser{s: s, input: input}
	t, err := p.term()
	if err != nil {
		return NoTerm, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		s.release(t)
		return NoTerm, p.errorf("unexpected trailing input %q", p.input[p.pos:])
	}
	return t, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformedEncoding, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *parser) releaseAll(terms []Term) {
	for _, t := range terms {
		p.s.release(t)
	}
}

// sequence parses term (',' term)* up to the closing delimiter.
func (p *parser) sequence(closing byte) ([]Term, error) {
	var terms []Term
	if p.peek() == closing {
		p.pos++
		return terms, nil
	}
	for {
		t, err := p.term()
		if err != nil {
			p.releaseAll(terms)
			return nil, err
		}
		terms = append(terms, t)
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return terms, nil
		default:
			p.releaseAll(terms)
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

func (p *parser) term() (Term, error) {
	c := p.peek()
	switch {
	case c == 0:
		return NoTerm, p.errorf("unexpected end of input")
	case c == '[':
		p.pos++
		elems, err := p.sequence(']')
		if err != nil {
			return NoTerm, err
		}
		list := p.s.makeList(elems)
		p.releaseAll(elems)
		return list, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.integer()
	case c == '"':
		name, err := p.quoted()
		if err != nil {
			return NoTerm, err
		}
		return p.application(name, true)
	case isDelimiter(c):
		return NoTerm, p.errorf("unexpected %q", c)
	default:
		start := p.pos
		for p.pos < len(p.input) && !isDelimiter(p.input[p.pos]) {
			p.pos++
		}
		return p.application(p.input[start:p.pos], false)
	}
}

func (p *parser) application(name string, quoted bool) (Term, error) {
	var args []Term
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		var err error
		args, err = p.sequence(')')
		if err != nil {
			return NoTerm, err
		}
		if len(args) == 0 {
			return NoTerm, p.errorf("empty argument list for %s", name)
		}
	}
	f := p.s.symbolLocked(symbol{name: name, arity: len(args), quoted: quoted && needsQuotes(name)})
	t := p.s.makeAppl(f, args)
	p.releaseAll(args)
	return t, nil
}

func (p *parser) integer() (Term, error) {
	start := p.pos
	if p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	text := p.input[start:p.pos]
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return p.s.construct(node{kind: KindInt, ival: v}), nil
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return NoTerm, p.errorf("bad integer %q", text)
	}
	return p.s.makeBigInt(v), nil
}

func (p *parser) quoted() (string, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			name, err := strconv.Unquote(p.input[start:p.pos])
			if err != nil {
				return "", p.errorf("bad quoted name %s", p.input[start:p.pos])
			}
			return name, nil
		default:
			p.pos++
		}
	}
	return "", p.errorf("unterminated quoted name")
}
