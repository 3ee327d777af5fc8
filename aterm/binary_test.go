package aterm

import (
	"bytes"
	"errors"
	"testing"
)

func buildSample(t *testing.T, store *Store) []Term {
	t.Helper()
	var roots []Term
	for _, text := range []string{
		"f(g(x),[1,2,3],-7)",
		"player_collects_prize(true)",
		`"x := 1"`,
		"h(99999999999999999999999999,[],[f(g(x),[1,2,3],-7)])",
	} {
		term, err := store.Parse(text)
		if err != nil {
			t.Fatalf("could not parse %s: %v", text, err)
		}
		roots = append(roots, term)
	}
	return roots
}

func TestBinaryRoundTrip(t *testing.T) {
	store := NewStore()
	roots := buildSample(t, store)

	var buf bytes.Buffer
	if err := WriteBinary(&buf, store, roots...); err != nil {
		t.Fatal(err)
	}

	same, err := ReadBinary(bytes.NewReader(buf.Bytes()), store)
	if err != nil {
		t.Fatal(err)
	}
	for i := range roots {
		if same[i] != roots[i] {
			t.Errorf("reading into the same store gave handle %d, expected %d", same[i], roots[i])
		}
	}

	fresh := NewStore()
	copied, err := ReadBinary(bytes.NewReader(buf.Bytes()), fresh)
	if err != nil {
		t.Fatal(err)
	}
	if len(copied) != len(roots) {
		t.Fatalf("read %d roots, expected %d", len(copied), len(roots))
	}
	for i := range roots {
		if fresh.String(copied[i]) != store.String(roots[i]) {
			t.Errorf("root %d read back as %s, expected %s", i, fresh.String(copied[i]), store.String(roots[i]))
		}
		if fresh.RefCount(copied[i]) < 1 {
			t.Errorf("root %d is not owned by the caller", i)
		}
	}
}

func TestBinaryPreservesSharing(t *testing.T) {
	store := NewStore()
	f := store.Symbol("f", 2)
	cur := store.MakeConstant("leaf")
	for i := 0; i < 40; i++ {
		next := store.MakeAppl(f, cur, cur)
		store.Release(cur)
		cur = next
	}

	var buf bytes.Buffer
	if err := WriteBinary(&buf, store, cur); err != nil {
		t.Fatal(err)
	}
	// 2^40 nodes as a tree; 41 distinct subterms as a graph.
	if buf.Len() > 256 {
		t.Errorf("encoding of a shared term took %d bytes", buf.Len())
	}
	roots, err := ReadBinary(&buf, NewStore())
	if err != nil || len(roots) != 1 {
		t.Fatalf("read back (%v, %v)", roots, err)
	}
}

func TestBinaryMalformed(t *testing.T) {
	store := NewStore()
	roots := buildSample(t, store)
	var buf bytes.Buffer
	if err := WriteBinary(&buf, store, roots...); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	target := NewStore(WithGCThreshold(0))
	for cut := 0; cut < len(data); cut++ {
		_, _, err := DecodeBinary(data[:cut], target)
		if !errors.Is(err, ErrMalformedEncoding) {
			t.Fatalf("truncation at %d: expected ErrMalformedEncoding, got %v", cut, err)
		}
	}
	target.Collect()
	if live := target.Live(); live != 0 {
		t.Errorf("failed reads leaked %d terms", live)
	}

	corrupt := append([]byte(nil), data...)
	corrupt[len(binaryMagic)] = 99
	if _, err := ReadBinary(bytes.NewReader(corrupt), target); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("expected a version error, got %v", err)
	}
}
