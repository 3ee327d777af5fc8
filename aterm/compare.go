package aterm

import (
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/segmentio/fasthash/fnv1a"
)

// TermHasher hashes term handles for immutable maps. Handle equality is structural equality,
// so no store access is needed.
type TermHasher struct{}

var _ immutable.Hasher[Term] = TermHasher{}

func (TermHasher) Hash(key Term) uint32 {
	return fnv1a.HashUint32(uint32(key))
}

func (TermHasher) Equal(a, b Term) bool {
	return a == b
}

// Compare orders terms structurally: by kind, then symbol name and arity, then children from
// left to right. Integers are ordered by value. Unlike handle order, the result does not depend
// on construction history.
func (s *Store) Compare(a, b Term) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.compare(a, b)
}

func (s *Store) compare(a, b Term) int {
	if a == b {
		return 0
	}
	na, nb := s.checkLive(a), s.checkLive(b)
	integer := func(k Kind) bool { return k == KindInt || k == KindBigInt }
	if integer(na.kind) && integer(nb.kind) {
		if na.kind == KindInt && nb.kind == KindInt {
			return compareInt64(na.ival, nb.ival)
		}
		return s.bigValue(a).Cmp(s.bigValue(b))
	}
	if na.kind != nb.kind {
		return compareInt64(int64(na.kind), int64(nb.kind))
	}
	if na.kind == KindAppl {
		sa, sb := s.symbols[na.fun], s.symbols[nb.fun]
		if c := strings.Compare(sa.name, sb.name); c != 0 {
			return c
		}
		if c := compareInt64(int64(sa.arity), int64(sb.arity)); c != 0 {
			return c
		}
		if sa.quoted != sb.quoted {
			if sa.quoted {
				return 1
			}
			return -1
		}
	}
	for i := range na.args {
		if c := s.compare(na.args[i], nb.args[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
