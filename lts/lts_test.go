package lts

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/pmonson711/mCRL2/aterm"
)

func TestLTS(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LTS Suite")
}

var _ = Describe("LTS", func() {
	var (
		store *aterm.Store
		l     *LTS
	)

	BeforeEach(func() {
		store = aterm.NewStore(aterm.WithGCThreshold(0))
		l = New(store)
		Expect(l.SetNumStates(3)).To(Succeed())
	})

	Context("Building", func() {
		It("interns equal probabilistic states", func() {
			b := NewDistributionBuilder()
			b.Add(1, big.NewRat(1, 3))
			b.Add(2, big.NewRat(2, 3))
			d, err := b.Distribution()
			Expect(err).NotTo(HaveOccurred())

			i, err := l.AddProbabilisticState(d)
			Expect(err).NotTo(HaveOccurred())
			j, err := l.AddProbabilisticState(d.Map(func(s int) int { return s }))
			Expect(err).NotTo(HaveOccurred())
			Expect(j).To(Equal(i))
			Expect(l.NumProbabilisticStates()).To(Equal(1))
		})

		It("rejects out of range references", func() {
			a := l.AddLabelString("a")
			Expect(l.AddPlainTransition(0, a, 3)).To(MatchError(ErrStructural))
			Expect(l.AddTransition(0, a, 0)).To(MatchError(ErrStructural))
			Expect(l.AddPlainTransition(0, a+1, 1)).To(MatchError(ErrStructural))
			Expect(l.SetInitial(Dirac(5))).To(MatchError(ErrStructural))
			Expect(l.NumTransitions()).To(Equal(0))
		})

		It("refuses to drop states still in use", func() {
			a := l.AddLabelString("a")
			Expect(l.AddPlainTransition(0, a, 2)).To(Succeed())
			Expect(l.SetNumStates(2)).To(MatchError(ErrStructural))
			Expect(l.AddState()).To(Equal(3))
			Expect(l.SetNumStates(3)).To(Succeed())
		})

		It("indexes outgoing transitions", func() {
			a := l.AddLabelString("a")
			b := l.AddLabelString("b")
			Expect(l.AddPlainTransition(0, a, 1)).To(Succeed())
			Expect(l.AddPlainTransition(1, b, 2)).To(Succeed())
			Expect(l.AddPlainTransition(0, b, 2)).To(Succeed())

			out := l.Outgoing(0)
			Expect(out).To(HaveLen(2))
			Expect(out[0].Label).To(Equal(a))
			Expect(out[1].Label).To(Equal(b))
			Expect(l.Outgoing(2)).To(BeEmpty())

			Expect(l.AddPlainTransition(2, a, 0)).To(Succeed())
			Expect(l.Outgoing(2)).To(HaveLen(1))
		})

		It("knows when it is plain", func() {
			Expect(l.SetInitial(Dirac(0))).To(Succeed())
			Expect(l.IsPlain()).To(BeTrue())

			b := NewDistributionBuilder()
			b.Add(1, big.NewRat(1, 2))
			b.Add(2, big.NewRat(1, 2))
			d, _ := b.Distribution()
			_, err := l.AddProbabilisticState(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.IsPlain()).To(BeFalse())
			Expect(l.Validate()).To(Succeed())
		})
	})

	Context("Labels", func() {
		It("parses labels as terms and falls back to quoted constants", func() {
			term := l.AddLabelString("player_collects_prize(true)")
			odd := l.AddLabelString("x := 1")
			Expect(store.Kind(l.Label(term))).To(Equal(aterm.KindAppl))
			Expect(store.Arity(l.Label(term))).To(Equal(1))
			Expect(l.LabelString(term)).To(Equal("player_collects_prize(true)"))
			Expect(l.LabelString(odd)).To(Equal("x := 1"))
			Expect(l.AddLabelString("player_collects_prize( true )")).To(Equal(term))
		})

		It("holds one reference per label until closed", func() {
			idx := l.AddLabelString("tau")
			label := l.Label(idx)
			Expect(store.RefCount(label)).To(Equal(1))
			l.AddLabel(label)
			Expect(store.RefCount(label)).To(Equal(1))

			l.Close()
			Expect(l.NumLabels()).To(Equal(0))
			store.Collect()
			Expect(store.Live()).To(Equal(0))
		})

		It("moves contents with ReplaceWith", func() {
			l.AddLabelString("old")
			other := New(store)
			other.SetNumStates(1)
			other.AddLabelString("new")
			Expect(other.SetInitial(Dirac(0))).To(Succeed())

			l.ReplaceWith(other)
			Expect(l.NumStates()).To(Equal(1))
			Expect(l.LabelString(0)).To(Equal("new"))
			Expect(other.NumLabels()).To(Equal(0))
			other.Close()

			store.Collect()
			Expect(store.Live()).To(Equal(1))
			l.Close()
			store.Collect()
			Expect(store.Live()).To(Equal(0))
		})
	})
})
