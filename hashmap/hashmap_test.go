package hashmap

import "testing"

// collidingKey hashes every key to the same bucket.
type collidingKey string

func (k collidingKey) Hash() uint32 {
	return 7
}

func (k collidingKey) Equal(other collidingKey) bool {
	return k == other
}

func TestCollisionsKeepKeysApart(t *testing.T) {
	h := New[collidingKey, int]()
	h.Set("a", 1)
	h.Set("b", 2)
	h.Set("a", 3)

	if h.Len() != 2 {
		t.Fatalf("expected 2 keys, found %d", h.Len())
	}
	if v, ok := h.Get("a"); !ok || v != 3 {
		t.Errorf("expected a=3, found %v (%v)", v, ok)
	}
	if v, ok := h.Get("b"); !ok || v != 2 {
		t.Errorf("expected b=2, found %v (%v)", v, ok)
	}
	if _, ok := h.Get("c"); ok {
		t.Errorf("found a value for absent key c")
	}
}

func TestInsertionOrder(t *testing.T) {
	h := New[collidingKey, int]()
	for i, k := range []collidingKey{"z", "y", "x"} {
		if v, existed := h.GetOrInsert(k, i); existed || v != i {
			t.Errorf("inserting %s returned (%d, %v)", k, v, existed)
		}
	}
	if v, existed := h.GetOrInsert("y", 99); !existed || v != 1 {
		t.Errorf("lookup of y returned (%d, %v)", v, existed)
	}
	if h.Keys[0] != "z" || h.Keys[2] != "x" || h.Values()[1] != 1 {
		t.Errorf("insertion order lost: %v %v", h.Keys, h.Values())
	}

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("expected an empty map after Clear, found %d keys", h.Len())
	}
}
