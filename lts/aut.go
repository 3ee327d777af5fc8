package lts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v2"
	"go.uber.org/multierr"

	"github.com/pmonson711/mCRL2/aterm"
)

// ParseError locates a failure in aut input.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const maxAUTLine = 16 << 20

// ParseAUT reads an LTS in aut format from a string.
func ParseAUT(text string, store *aterm.Store) (*LTS, error) {
	return ReadAUT(strings.NewReader(text), store)
}

// ReadAUT reads an LTS in aut format:
//
//	des (<initial distribution>,<number of transitions>,<number of states>)
//	(<source>,"<label>",<target distribution>)
//	...
//
// A distribution is "s1 p1 s2 p2 ... sk" with rationals "n/d"; the last state receives the
// remaining probability. Syntax errors stop reading at once. Structural errors are collected
// and reported together at the end. No LTS is returned on error.
func ReadAUT(r io.Reader, store *aterm.Store) (*LTS, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxAUTLine)

	l := New(store)
	ar := autReader{lts: l, labels: make(map[string]int), seen: set.New[Transition](0)}
	var structural error
	lineNo, header := 0, false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var err error
		if !header {
			err = ar.header(line)
			header = true
		} else {
			err = ar.transition(line)
		}
		if err == nil {
			continue
		}
		err = &ParseError{Line: lineNo, Err: err}
		if !errors.Is(err, ErrStructural) {
			l.Close()
			return nil, err
		}
		structural = multierr.Append(structural, err)
	}
	if err := scanner.Err(); err != nil {
		l.Close()
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if !header {
		l.Close()
		return nil, &ParseError{Line: lineNo, Err: fmt.Errorf("%w: missing des header", ErrMalformedInput)}
	}
	if ar.read != ar.declared {
		structural = multierr.Append(structural, fmt.Errorf("%w: header declares %d transitions, found %d", ErrStructural, ar.declared, ar.read))
	}
	if structural != nil {
		l.Close()
		return nil, structural
	}
	return l, nil
}

type autReader struct {
	lts      *LTS
	labels   map[string]int
	seen     *set.Set[Transition]
	declared int
	read     int
}

func syntaxf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrMalformedInput}, args...)...)
}

func (ar *autReader) header(line string) error {
	rest, ok := strings.CutPrefix(line, "des")
	if !ok {
		return syntaxf("expected des header, found %q", line)
	}
	inner, err := parenthesised(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	parts := strings.Split(inner, ",")
	if len(parts) != 3 {
		return syntaxf("des header needs 3 fields, found %d", len(parts))
	}
	ntrans, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || ntrans < 0 {
		return syntaxf("bad transition count %q", parts[1])
	}
	nstates, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || nstates < 0 {
		return syntaxf("bad state count %q", parts[2])
	}
	ar.declared = ntrans
	if err := ar.lts.SetNumStates(nstates); err != nil {
		return err
	}
	initial, err := ar.distribution(parts[0])
	if err != nil {
		return err
	}
	return ar.lts.SetInitial(initial)
}

func (ar *autReader) transition(line string) error {
	ar.read++
	inner, err := parenthesised(line)
	if err != nil {
		return err
	}
	first, last := strings.IndexByte(inner, ','), strings.LastIndexByte(inner, ',')
	if first < 0 || first == last {
		return syntaxf("transition needs source, label and target, found %q", line)
	}
	from, err := ar.state(inner[:first])
	if err != nil {
		return err
	}
	label, err := ar.label(inner[first+1 : last])
	if err != nil {
		return err
	}
	target, err := ar.distribution(inner[last+1:])
	if err != nil {
		return err
	}
	to, err := ar.lts.AddProbabilisticState(target)
	if err != nil {
		return err
	}
	tr := Transition{From: from, Label: label, To: to}
	if !ar.seen.Insert(tr) {
		return fmt.Errorf("%w: duplicate transition %s", ErrStructural, line)
	}
	return ar.lts.AddTransition(from, label, to)
}

func parenthesised(s string) (string, error) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", syntaxf("expected parenthesised tuple, found %q", s)
	}
	return s[1 : len(s)-1], nil
}

func (ar *autReader) state(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, syntaxf("bad state %q", s)
	}
	if n >= ar.lts.NumStates() {
		return 0, fmt.Errorf("%w: state %d out of range [0, %d)", ErrStructural, n, ar.lts.NumStates())
	}
	return n, nil
}

func (ar *autReader) label(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if len(s) < 2 || !strings.HasSuffix(s, `"`) {
			return 0, syntaxf("unterminated label %s", s)
		}
		s = s[1 : len(s)-1]
	}
	if idx, ok := ar.labels[s]; ok {
		return idx, nil
	}
	idx := ar.lts.AddLabelString(s)
	ar.labels[s] = idx
	return idx, nil
}

// distribution parses "s1 p1 ... sk". Whitespace may separate the parts of a rational.
func (ar *autReader) distribution(s string) (Distribution, error) {
	tokens, err := tokenizeDistribution(s)
	if err != nil {
		return Distribution{}, err
	}
	if len(tokens) == 0 {
		return Distribution{}, syntaxf("empty distribution")
	}

	builder := NewDistributionBuilder()
	remainder := big.NewRat(1, 1)
	pos := 0
	for {
		if tokens[pos] == "/" {
			return Distribution{}, syntaxf("expected a state in %q", s)
		}
		state, err := ar.state(tokens[pos])
		if err != nil {
			return Distribution{}, err
		}
		pos++
		if pos == len(tokens) {
			if remainder.Sign() <= 0 {
				return Distribution{}, fmt.Errorf("%w: probabilities in %q leave %s for state %d", ErrStructural, strings.TrimSpace(s), remainder.RatString(), state)
			}
			builder.Add(state, remainder)
			break
		}
		if pos+3 > len(tokens) || tokens[pos] == "/" || tokens[pos+1] != "/" || tokens[pos+2] == "/" {
			return Distribution{}, syntaxf("expected a probability n/d after state %d in %q", state, s)
		}
		num, _ := new(big.Int).SetString(tokens[pos], 10)
		den, _ := new(big.Int).SetString(tokens[pos+2], 10)
		pos += 3
		if den.Sign() == 0 {
			return Distribution{}, syntaxf("zero denominator in probability %s/0 of state %d", num, state)
		}
		if num.Sign() == 0 {
			return Distribution{}, fmt.Errorf("%w: probability 0/%s of state %d is not positive", ErrStructural, den, state)
		}
		p := new(big.Rat).SetFrac(num, den)
		builder.Add(state, p)
		remainder.Sub(remainder, p)
		if pos == len(tokens) {
			return Distribution{}, syntaxf("distribution %q ends with a probability", s)
		}
	}
	return builder.Distribution()
}

// tokenizeDistribution splits s into runs of digits and "/" separators.
func tokenizeDistribution(s string) ([]string, error) {
	var tokens []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '/':
			tokens = append(tokens, "/")
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			tokens = append(tokens, s[start:i])
		default:
			return nil, syntaxf("unexpected %q in distribution %q", c, s)
		}
	}
	return tokens, nil
}

// WriteAUT writes l in aut format.
func WriteAUT(w io.Writer, l *LTS) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "des (%s,%d,%d)\n", l.Initial(), l.NumTransitions(), l.NumStates()); err != nil {
		return err
	}
	for _, tr := range l.Transitions() {
		if _, err := fmt.Fprintf(bw, "(%d,\"%s\",%s)\n", tr.From, l.LabelString(tr.Label), l.ProbabilisticState(tr.To)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
