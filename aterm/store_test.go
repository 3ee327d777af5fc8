package aterm

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Term store", func() {
	var store *Store

	BeforeEach(func() {
		store = NewStore(WithGCThreshold(0))
	})

	Context("Hash consing", func() {
		It("returns the same handle for structurally equal applications", func() {
			f := store.Symbol("f", 2)
			a := store.MakeConstant("a")
			b := store.MakeConstant("b")

			t1 := store.MakeAppl(f, a, b)
			t2 := store.MakeAppl(store.Symbol("f", 2), store.MakeConstant("a"), b)

			Expect(t1).To(Equal(t2))
			Expect(store.RefCount(t1)).To(Equal(2))
			Expect(store.MakeAppl(f, b, a)).NotTo(Equal(t1))
		})

		It("distinguishes symbols by arity and quoting", func() {
			Expect(store.Symbol("f", 1)).NotTo(Equal(store.Symbol("f", 2)))
			Expect(store.Symbol("a", 0)).NotTo(Equal(store.QuotedSymbol("a", 0)))
			Expect(store.Symbol("f", 1)).To(Equal(store.Symbol("f", 1)))
		})

		It("shares integers and lists", func() {
			Expect(store.MakeInt(42)).To(Equal(store.MakeInt(42)))
			Expect(store.MakeInt(42)).NotTo(Equal(store.MakeInt(-42)))

			l1 := store.MakeList(store.MakeInt(1), store.MakeInt(2))
			l2 := store.Cons(store.MakeInt(1), store.MakeList(store.MakeInt(2)))
			Expect(l1).To(Equal(l2))
			Expect(store.ListElems(l1)).To(Equal([]Term{store.MakeInt(1), store.MakeInt(2)}))
			Expect(store.Kind(store.MakeList())).To(Equal(KindEmptyList))
		})

		It("keeps word sized big integers as machine integers", func() {
			Expect(store.MakeBigInt(big.NewInt(7))).To(Equal(store.MakeInt(7)))

			huge := new(big.Int).Lsh(big.NewInt(3), 100)
			t := store.MakeBigInt(huge)
			Expect(store.Kind(t)).To(Equal(KindBigInt))
			Expect(store.MakeBigInt(new(big.Int).Lsh(big.NewInt(3), 100))).To(Equal(t))
			Expect(store.BigValue(t).Cmp(huge)).To(Equal(0))

			neg := new(big.Int).Neg(huge)
			Expect(store.BigValue(store.MakeBigInt(neg)).Cmp(neg)).To(Equal(0))
			Expect(store.MakeBigInt(neg)).NotTo(Equal(t))
		})

		It("panics on arity mismatches", func() {
			f := store.Symbol("f", 2)
			Expect(func() { store.MakeAppl(f, store.MakeInt(1)) }).To(Panic())
		})
	})

	Context("Garbage collection", func() {
		It("reclaims a term and the children only it referenced", func() {
			f := store.Symbol("f", 2)
			a := store.MakeConstant("a")
			t := store.MakeAppl(f, a, a)
			store.Release(a)
			Expect(store.RefCount(a)).To(Equal(2))

			Expect(store.Collect()).To(Equal(0))
			store.Release(t)
			Expect(store.Collect()).To(Equal(2))
			Expect(store.Live()).To(Equal(0))
			Expect(store.IsLive(t)).To(BeFalse())
		})

		It("keeps shared children alive", func() {
			a := store.MakeConstant("a")
			t1 := store.MakeAppl(store.Symbol("f", 1), a)
			t2 := store.MakeAppl(store.Symbol("g", 1), a)
			store.Release(a)
			store.Release(t1)

			Expect(store.Collect()).To(Equal(1))
			Expect(store.IsLive(a)).To(BeTrue())
			Expect(store.Arg(t2, 0)).To(Equal(a))
		})

		It("revives a released term handed out again before collection", func() {
			f := store.Symbol("f", 1)
			a := store.MakeConstant("a")
			t := store.MakeAppl(f, a)
			store.Release(t)

			again := store.MakeAppl(f, a)
			Expect(again).To(Equal(t))
			Expect(store.Collect()).To(Equal(0))
			Expect(store.RefCount(t)).To(Equal(1))
		})

		It("collects deep terms without recursion", func() {
			g := store.Symbol("g", 1)
			cur := store.MakeConstant("z")
			const depth = 200000
			for i := 0; i < depth; i++ {
				next := store.MakeAppl(g, cur)
				store.Release(cur)
				cur = next
			}
			Expect(store.Live()).To(Equal(depth + 1))

			store.Release(cur)
			Expect(store.Collect()).To(Equal(depth + 1))
			Expect(store.Live()).To(Equal(0))
		})

		It("reuses freed slots", func() {
			for i := int64(0); i < 100; i++ {
				store.Release(store.MakeInt(i))
			}
			store.Collect()
			capacity := store.Stats().Capacity
			for i := int64(100); i < 200; i++ {
				store.MakeInt(i)
			}
			Expect(store.Stats().Capacity).To(Equal(capacity))
			Expect(store.Live()).To(Equal(100))
		})

		It("collects automatically past the threshold", func() {
			auto := NewStore(WithGCThreshold(10))
			for i := int64(0); i < 100; i++ {
				auto.Release(auto.MakeInt(i))
			}
			Expect(auto.Stats().Collections).To(BeNumerically(">", 0))
			Expect(auto.Live()).To(BeNumerically("<", 100))
		})

		It("fails fast on freed handles and double releases", func() {
			t := store.MakeConstant("a")
			store.Release(t)
			Expect(func() { store.Release(t) }).To(Panic())
			store.Collect()
			Expect(func() { store.Kind(t) }).To(Panic())
			Expect(func() { store.Protect(NoTerm) }).To(Panic())
		})

		It("treats exhaustion as fatal", func() {
			small := NewStore(WithMaxTerms(2))
			small.MakeInt(1)
			small.MakeInt(2)
			Expect(func() { small.MakeInt(3) }).To(Panic())
		})
	})

	Context("Structural order", func() {
		It("orders integers by value and applications by name", func() {
			big1 := store.MakeBigInt(new(big.Int).Lsh(big.NewInt(1), 80))
			Expect(store.Compare(store.MakeInt(-5), store.MakeInt(3))).To(Equal(-1))
			Expect(store.Compare(big1, store.MakeInt(3))).To(Equal(1))
			Expect(store.Compare(store.MakeConstant("b"), store.MakeConstant("a"))).To(Equal(1))

			f := store.Symbol("f", 1)
			Expect(store.Compare(store.MakeAppl(f, store.MakeInt(1)), store.MakeAppl(f, store.MakeInt(2)))).To(Equal(-1))
			Expect(store.Compare(store.MakeAppl(f, store.MakeInt(1)), store.MakeAppl(f, store.MakeInt(1)))).To(Equal(0))
		})
	})
})

func TestATerm(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ATerm")
}
