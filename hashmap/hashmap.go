package hashmap

// Hashable keys provide their own hash and an exact equality, so colliding hashes never
// merge distinct keys.
type Hashable[K any] interface {
	Hash() uint32
	Equal(other K) bool
}

// HashMap maps Hashable keys to values and remembers insertion order in Keys.
type HashMap[K Hashable[K], V any] struct {
	M    map[uint32][]int
	Keys []K
	vals []V
}

func New[K Hashable[K], V any]() *HashMap[K, V] {
	return &HashMap[K, V]{M: make(map[uint32][]int)}
}

func (h *HashMap[K, V]) find(k K) (int, bool) {
	for _, idx := range h.M[k.Hash()] {
		if h.Keys[idx].Equal(k) {
			return idx, true
		}
	}
	return -1, false
}

func (h *HashMap[K, V]) Set(k K, v V) {
	if idx, ok := h.find(k); ok {
		h.vals[idx] = v
		return
	}
	hash := k.Hash()
	h.M[hash] = append(h.M[hash], len(h.Keys))
	h.Keys = append(h.Keys, k)
	h.vals = append(h.vals, v)
}

func (h *HashMap[K, V]) Get(k K) (v V, ok bool) {
	idx, ok := h.find(k)
	if ok {
		v = h.vals[idx]
	}
	return
}

// GetOrInsert returns the value stored for k, storing v first if k is absent.
func (h *HashMap[K, V]) GetOrInsert(k K, v V) (V, bool) {
	if idx, ok := h.find(k); ok {
		return h.vals[idx], true
	}
	h.Set(k, v)
	return v, false
}

func (h *HashMap[K, V]) Len() int {
	return len(h.Keys)
}

// Values returns the values in key insertion order.
func (h *HashMap[K, V]) Values() []V {
	return h.vals
}

func (h *HashMap[K, V]) Clear() {
	for k := range h.M {
		delete(h.M, k)
	}
	h.Keys = h.Keys[:0]
	h.vals = h.vals[:0]
}
