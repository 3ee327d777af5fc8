package aterm

import (
	"bytes"
	"fmt"
	"io"
)

var binaryMagic = []byte{0, 'A', 'T', 'B'}

const binaryVersion = 1

// WriteBinary serialises the term graphs rooted at roots. Each distinct subterm is written once,
// after its children, and refers to them by position. Every count, index and integer is
// written with the multi-byte integer encoding.
func WriteBinary(w io.Writer, s *Store, roots ...Term) error {
	s.lock.Lock()
	buf := s.appendBinary(nil, roots)
	s.lock.Unlock()
	_, err := w.Write(buf)
	return err
}

type binaryFrame struct {
	t    Term
	next int
}

func (s *Store) appendBinary(buf []byte, roots []Term) []byte {
	termIndex := make(map[Term]uint64)
	symbolIndex := make(map[AFun]uint64)
	var order []Term
	var symbolOrder []AFun

	var stack []binaryFrame
	for _, root := range roots {
		s.checkLive(root)
		if _, ok := termIndex[root]; ok {
			continue
		}
		stack = append(stack, binaryFrame{t: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			n := &s.nodes[top.t]
			if top.next < len(n.args) {
				child := n.args[top.next]
				top.next++
				if _, ok := termIndex[child]; !ok {
					stack = append(stack, binaryFrame{t: child})
				}
				continue
			}
			if n.kind == KindAppl {
				if _, ok := symbolIndex[n.fun]; !ok {
					symbolIndex[n.fun] = uint64(len(symbolOrder))
					symbolOrder = append(symbolOrder, n.fun)
				}
			}
			termIndex[top.t] = uint64(len(order))
			order = append(order, top.t)
			stack = stack[:len(stack)-1]
		}
	}

	buf = append(buf, binaryMagic...)
	buf = append(buf, binaryVersion)
	buf = AppendMultiByteInt(buf, uint64(len(symbolOrder)))
	for _, f := range symbolOrder {
		sym := s.symbols[f]
		var flags byte
		if sym.quoted {
			flags = 1
		}
		buf = append(buf, flags)
		buf = AppendMultiByteInt(buf, uint64(sym.arity))
		buf = AppendMultiByteInt(buf, uint64(len(sym.name)))
		buf = append(buf, sym.name...)
	}

	buf = AppendMultiByteInt(buf, uint64(len(order)))
	for _, t := range order {
		n := &s.nodes[t]
		buf = append(buf, byte(n.kind))
		switch n.kind {
		case KindAppl:
			buf = AppendMultiByteInt(buf, symbolIndex[n.fun])
		case KindInt:
			buf = AppendMultiByteInt(buf, uint64(n.ival<<1)^uint64(n.ival>>63))
		case KindBigInt:
			buf = AppendMultiByteInt(buf, uint64(len(n.bval)))
			buf = append(buf, n.bval...)
		}
		for _, arg := range n.args {
			buf = AppendMultiByteInt(buf, termIndex[arg])
		}
	}

	buf = AppendMultiByteInt(buf, uint64(len(roots)))
	for _, root := range roots {
		buf = AppendMultiByteInt(buf, termIndex[root])
	}
	return buf
}

// ReadBinary reads a stream produced by WriteBinary into s and returns owned references to
// its roots. Malformed input yields an error wrapping ErrMalformedEncoding.
func ReadBinary(r io.Reader, s *Store) ([]Term, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	roots, _, err := DecodeBinary(data, s)
	return roots, err
}

type binaryReader struct {
	data []byte
	pos  int
}

func (br *binaryReader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: byte %d: %s", ErrMalformedEncoding, br.pos, fmt.Sprintf(format, args...))
}

func (br *binaryReader) readUint() (uint64, error) {
	v, n, err := DecodeMultiByteInt(br.data[br.pos:])
	if err != nil {
		return 0, fmt.Errorf("byte %d: %w", br.pos, err)
	}
	br.pos += n
	return v, nil
}

func (br *binaryReader) readBytes(n uint64) ([]byte, error) {
	if n > uint64(len(br.data)-br.pos) {
		return nil, br.errorf("need %d bytes, %d left", n, len(br.data)-br.pos)
	}
	out := br.data[br.pos : br.pos+int(n)]
	br.pos += int(n)
	return out, nil
}

func (br *binaryReader) readByte() (byte, error) {
	b, err := br.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// DecodeBinary is ReadBinary over an in-memory buffer. It also returns the number of bytes
// consumed, so term blocks can be embedded in larger formats.
func DecodeBinary(data []byte, s *Store) ([]Term, int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	br := &binaryReader{data: data}
	var terms []Term
	fail := func(err error) ([]Term, int, error) {
		for _, t := range terms {
			s.release(t)
		}
		return nil, 0, err
	}

	magic, err := br.readBytes(uint64(len(binaryMagic)))
	if err != nil || !bytes.Equal(magic, binaryMagic) {
		return fail(br.errorf("bad magic"))
	}
	if version, err := br.readByte(); err != nil || version != binaryVersion {
		return fail(br.errorf("unsupported version"))
	}

	symbolCount, err := br.readUint()
	if err != nil {
		return fail(err)
	}
	var symbols []AFun
	for i := uint64(0); i < symbolCount; i++ {
		flags, err := br.readByte()
		if err != nil {
			return fail(err)
		}
		arity, err := br.readUint()
		if err != nil {
			return fail(err)
		}
		nameLen, err := br.readUint()
		if err != nil {
			return fail(err)
		}
		name, err := br.readBytes(nameLen)
		if err != nil {
			return fail(err)
		}
		if arity > uint64(len(data)) {
			return fail(br.errorf("implausible arity %d", arity))
		}
		symbols = append(symbols, s.symbolLocked(symbol{name: string(name), arity: int(arity), quoted: flags&1 != 0}))
	}

	termCount, err := br.readUint()
	if err != nil {
		return fail(err)
	}
	if termCount > uint64(len(data)) {
		return fail(br.errorf("implausible term count %d", termCount))
	}
	readChildren := func(count int) ([]Term, error) {
		children := make([]Term, count)
		for i := range children {
			idx, err := br.readUint()
			if err != nil {
				return nil, err
			}
			if idx >= uint64(len(terms)) {
				return nil, br.errorf("forward reference to term %d", idx)
			}
			children[i] = terms[idx]
		}
		return children, nil
	}
	for i := uint64(0); i < termCount; i++ {
		kind, err := br.readByte()
		if err != nil {
			return fail(err)
		}
		var t Term
		switch Kind(kind) {
		case KindAppl:
			symIdx, err := br.readUint()
			if err != nil {
				return fail(err)
			}
			if symIdx >= uint64(len(symbols)) {
				return fail(br.errorf("unknown symbol %d", symIdx))
			}
			f := symbols[symIdx]
			args, err := readChildren(s.symbols[f].arity)
			if err != nil {
				return fail(err)
			}
			t = s.makeAppl(f, args)
		case KindInt:
			zz, err := br.readUint()
			if err != nil {
				return fail(err)
			}
			t = s.construct(node{kind: KindInt, ival: int64(zz>>1) ^ -int64(zz&1)})
		case KindBigInt:
			n, err := br.readUint()
			if err != nil {
				return fail(err)
			}
			enc, err := br.readBytes(n)
			if err != nil {
				return fail(err)
			}
			if len(enc) < 2 || enc[0] > 1 {
				return fail(br.errorf("bad big integer"))
			}
			v, used, err := DecodeMultiByteBig(enc[1:])
			if err != nil || used != len(enc)-1 {
				return fail(br.errorf("bad big integer magnitude"))
			}
			if enc[0] == 1 {
				v.Neg(v)
			}
			t = s.makeBigInt(v)
		case KindEmptyList:
			t = s.construct(node{kind: KindEmptyList})
		case KindList:
			children, err := readChildren(2)
			if err != nil {
				return fail(err)
			}
			if k := s.nodes[children[1]].kind; k != KindList && k != KindEmptyList {
				return fail(br.errorf("list tail is a %v", k))
			}
			t = s.construct(node{kind: KindList, args: children})
		default:
			return fail(br.errorf("unknown term kind %d", kind))
		}
		terms = append(terms, t)
	}

	rootCount, err := br.readUint()
	if err != nil {
		return fail(err)
	}
	if rootCount > uint64(len(data)) {
		return fail(br.errorf("implausible root count %d", rootCount))
	}
	roots := make([]Term, 0, rootCount)
	for i := uint64(0); i < rootCount; i++ {
		idx, err := br.readUint()
		if err != nil {
			for _, root := range roots {
				s.release(root)
			}
			return fail(err)
		}
		if idx >= uint64(len(terms)) {
			for _, root := range roots {
				s.release(root)
			}
			return fail(br.errorf("root refers to term %d", idx))
		}
		s.nodes[terms[idx]].refs++
		roots = append(roots, terms[idx])
	}
	for _, t := range terms {
		s.release(t)
	}
	return roots, br.pos, nil
}
