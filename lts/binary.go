package lts

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/pmonson711/mCRL2/aterm"
)

var binaryMagic = []byte{0, 'L', 'T', 'S'}

const binaryVersion = 1

// WriteBinary writes l compactly: the labels as a term block followed by the states,
// distributions and transitions, every number multi-byte encoded.
func WriteBinary(w io.Writer, l *LTS) error {
	var labels bytes.Buffer
	if err := aterm.WriteBinary(&labels, l.store, l.labels...); err != nil {
		return err
	}
	buf := append([]byte(nil), binaryMagic...)
	buf = aterm.AppendMultiByteInt(buf, binaryVersion)
	buf = aterm.AppendMultiByteInt(buf, uint64(labels.Len()))
	buf = append(buf, labels.Bytes()...)
	buf = aterm.AppendMultiByteInt(buf, uint64(l.numStates))
	buf = appendDistribution(buf, l.initial)
	buf = aterm.AppendMultiByteInt(buf, uint64(len(l.probStates)))
	for _, d := range l.probStates {
		buf = appendDistribution(buf, d)
	}
	buf = aterm.AppendMultiByteInt(buf, uint64(len(l.transitions)))
	for _, tr := range l.transitions {
		buf = aterm.AppendMultiByteInt(buf, uint64(tr.From))
		buf = aterm.AppendMultiByteInt(buf, uint64(tr.Label))
		buf = aterm.AppendMultiByteInt(buf, uint64(tr.To))
	}
	_, err := w.Write(buf)
	return err
}

func appendDistribution(buf []byte, d Distribution) []byte {
	buf = aterm.AppendMultiByteInt(buf, uint64(len(d.entries)))
	for _, e := range d.entries {
		buf = aterm.AppendMultiByteInt(buf, uint64(e.State))
		buf = aterm.AppendMultiByteBig(buf, e.Probability.Num())
		buf = aterm.AppendMultiByteBig(buf, e.Probability.Denom())
	}
	return buf
}

// ReadBinary reads an LTS written by WriteBinary, building its labels in store.
func ReadBinary(r io.Reader, store *aterm.Store) (*LTS, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	l := New(store)
	if err := l.decode(data); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

type ltsDecoder struct {
	data []byte
	pos  int
}

func (d *ltsDecoder) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: at offset %d: %s", ErrMalformedInput, d.pos, fmt.Sprintf(format, args...))
}

func (d *ltsDecoder) readInt() (int, error) {
	v, n, err := aterm.DecodeMultiByteInt(d.data[d.pos:])
	if err != nil {
		return 0, d.errorf("%v", err)
	}
	if v > math.MaxInt32 {
		return 0, d.errorf("implausible value %d", v)
	}
	d.pos += n
	return int(v), nil
}

func (d *ltsDecoder) readBig() (*big.Int, error) {
	v, n, err := aterm.DecodeMultiByteBig(d.data[d.pos:])
	if err != nil {
		return nil, d.errorf("%v", err)
	}
	d.pos += n
	return v, nil
}

func (d *ltsDecoder) distribution() (Distribution, error) {
	n, err := d.readInt()
	if err != nil {
		return Distribution{}, err
	}
	builder := NewDistributionBuilder()
	for i := 0; i < n; i++ {
		state, err := d.readInt()
		if err != nil {
			return Distribution{}, err
		}
		num, err := d.readBig()
		if err != nil {
			return Distribution{}, err
		}
		den, err := d.readBig()
		if err != nil {
			return Distribution{}, err
		}
		if den.Sign() == 0 {
			return Distribution{}, d.errorf("zero denominator")
		}
		builder.Add(state, new(big.Rat).SetFrac(num, den))
	}
	return builder.Distribution()
}

func (l *LTS) decode(data []byte) error {
	if !bytes.HasPrefix(data, binaryMagic) {
		return fmt.Errorf("%w: not a binary LTS", ErrMalformedInput)
	}
	d := &ltsDecoder{data: data, pos: len(binaryMagic)}
	version, err := d.readInt()
	if err != nil {
		return err
	}
	if version != binaryVersion {
		return d.errorf("unsupported version %d", version)
	}
	size, err := d.readInt()
	if err != nil {
		return err
	}
	if size > len(data)-d.pos {
		return d.errorf("label block of %d bytes is truncated", size)
	}
	labels, _, err := aterm.DecodeBinary(data[d.pos:d.pos+size], l.store)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	d.pos += size
	for _, label := range labels {
		l.AddLabel(label)
		l.store.Release(label)
	}

	numStates, err := d.readInt()
	if err != nil {
		return err
	}
	if err := l.SetNumStates(numStates); err != nil {
		return err
	}
	initial, err := d.distribution()
	if err != nil {
		return err
	}
	if err := l.SetInitial(initial); err != nil {
		return err
	}
	numProb, err := d.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < numProb; i++ {
		dist, err := d.distribution()
		if err != nil {
			return err
		}
		if idx, err := l.AddProbabilisticState(dist); err != nil {
			return err
		} else if idx != i {
			return fmt.Errorf("%w: probabilistic state %d repeats state %d", ErrStructural, i, idx)
		}
	}
	numTrans, err := d.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < numTrans; i++ {
		var fields [3]int
		for j := range fields {
			if fields[j], err = d.readInt(); err != nil {
				return err
			}
		}
		if err := l.AddTransition(fields[0], fields[1], fields[2]); err != nil {
			return err
		}
	}
	if d.pos != len(data) {
		return d.errorf("%d trailing bytes", len(data)-d.pos)
	}
	return nil
}
