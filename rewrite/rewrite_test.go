package rewrite

import (
	"errors"
	"testing"

	"github.com/pmonson711/mCRL2/aterm"
)

func parseAll(t *testing.T, store *aterm.Store, texts ...string) []aterm.Term {
	t.Helper()
	terms := make([]aterm.Term, len(texts))
	for i, text := range texts {
		term, err := store.Parse(text)
		if err != nil {
			t.Fatalf("could not parse %s: %v", text, err)
		}
		terms[i] = term
	}
	return terms
}

func TestNormalize(t *testing.T) {
	type Record struct {
		Name           string
		Input          string
		ExpectedResult string
	}

	tests := []Record{
		{Name: "plus", Input: "plus(2,3)", ExpectedResult: "5"},
		{Name: "minus", Input: "minus(2,5)", ExpectedResult: "-3"},
		{Name: "big times", Input: "times(99999999999,99999999999)", ExpectedResult: "9999999999800000000001"},
		{Name: "nested", Input: "lt(minus(10,plus(4,5)),times(1,2))", ExpectedResult: "true"},
		{Name: "eq on terms", Input: "eq(f(a),f(a))", ExpectedResult: "true"},
		{Name: "eq on ints", Input: "eq(1,2)", ExpectedResult: "false"},
		{Name: "stuck", Input: "plus(a,1)", ExpectedResult: "plus(a,1)"},
		{Name: "rule", Input: "len(cons(a,cons(b,nil)))", ExpectedResult: "2"},
		{Name: "rule inside list", Input: "[len(nil),swap(pair(a,b))]", ExpectedResult: "[0,pair(b,a)]"},
		{Name: "repeated variable", Input: "same(pair(a,a))", ExpectedResult: "true"},
		{Name: "repeated variable mismatch", Input: "same(pair(a,b))", ExpectedResult: "same(pair(a,b))"},
	}

	store := aterm.NewStore()
	rules := parseAll(t, store,
		"len(nil)", "0",
		"len(cons(h,tl))", "plus(1,len(tl))",
		"swap(pair(x,y))", "pair(y,x)",
		"same(pair(x,x))", "true",
	)
	r, err := New(store, WithRules(
		NewRule(rules[0], rules[1]),
		NewRule(rules[2], rules[3], "h", "tl"),
		NewRule(rules[4], rules[5], "x", "y"),
		NewRule(rules[6], rules[7], "x"),
	))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			input := parseAll(t, store, test.Input)[0]
			nf := r.Normalize(input)
			if actual := store.String(nf); actual != test.ExpectedResult {
				t.Errorf("result %s did not equal expected value %s", actual, test.ExpectedResult)
			}
			if again := r.Normalize(input); again != nf {
				t.Errorf("normalising twice gave %d and %d", nf, again)
			}
		})
	}
}

func TestAC(t *testing.T) {
	store := aterm.NewStore()
	r, err := New(store, WithAC("plus", "union"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	type Record struct {
		Input          string
		ExpectedResult string
	}
	for _, test := range []Record{
		{Input: "plus(b,plus(3,plus(a,4)))", ExpectedResult: "plus(7,plus(a,b))"},
		{Input: "plus(plus(a,b),plus(b,a))", ExpectedResult: "plus(a,plus(a,plus(b,b)))"},
		{Input: "plus(1,plus(2,3))", ExpectedResult: "6"},
		{Input: "union(c,union(a,b))", ExpectedResult: "union(a,union(b,c))"},
	} {
		nf := r.Normalize(parseAll(t, store, test.Input)[0])
		if actual := store.String(nf); actual != test.ExpectedResult {
			t.Errorf("%s normalised to %s, expected %s", test.Input, actual, test.ExpectedResult)
		}
	}

	commuted := r.Normalize(parseAll(t, store, "union(b,a)")[0])
	if commuted != r.Normalize(parseAll(t, store, "union(a,b)")[0]) {
		t.Errorf("commuted arguments gave different normal forms")
	}
}

func TestInvalidRules(t *testing.T) {
	store := aterm.NewStore()
	terms := parseAll(t, store, "f(x)", "g(y)", "x")

	_, err := New(store, WithRules(NewRule(terms[0], terms[1], "x", "y")))
	if !errors.Is(err, ErrUnboundVariable) {
		t.Errorf("expected ErrUnboundVariable, got %v", err)
	}
	_, err = New(store, WithRules(NewRule(terms[2], terms[0], "x")))
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", err)
	}
	if _, err := New(store, WithRules(NewRule(terms[0], terms[1], "x"))); err != nil {
		t.Errorf("a free constant on the right was rejected: %v", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	store := aterm.NewStore(aterm.WithGCThreshold(0))
	terms := parseAll(t, store, "double(x)", "plus(x,x)", "double(double(21))")
	r, err := New(store, WithAC("plus"), WithRules(NewRule(terms[0], terms[1], "x")))
	if err != nil {
		t.Fatal(err)
	}
	nf := r.Normalize(terms[2])
	if store.String(nf) != "84" {
		t.Fatalf("normal form %s", store.String(nf))
	}

	store.Release(nf)
	for _, term := range terms {
		store.Release(term)
	}
	r.Close()
	store.Collect()
	if live := store.Live(); live != 0 {
		t.Errorf("%d terms survived Close", live)
	}
}
