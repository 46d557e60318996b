package ordmap

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/danmuck/tensorctl/internal/testutil/testlog"
)

func TestInsertAndGet(t *testing.T) {
	testlog.Start(t)
	m := New[int, int](nil)

	if !m.Insert(3, 30) {
		t.Fatalf("first insert rejected")
	}
	if m.Insert(3, 99) {
		t.Fatalf("duplicate insert accepted")
	}
	if v, ok := m.Get(3); !ok || v != 30 {
		t.Fatalf("got=%d ok=%v", v, ok)
	}
	m.Set(3, 99)
	if v, _ := m.Get(3); v != 99 {
		t.Fatalf("set did not overwrite: got=%d", v)
	}
	if m.Len() != 1 {
		t.Fatalf("len=%d want=1", m.Len())
	}
}

func TestKeysSortedAndDelete(t *testing.T) {
	testlog.Start(t)
	m := New[int, string](nil)
	for _, k := range []int{5, 1, 4, 2, 3} {
		m.Insert(k, "v")
	}
	keys := m.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not strictly ascending: %v", keys)
		}
	}
	if !m.Delete(3) {
		t.Fatalf("delete missed existing key")
	}
	if m.Delete(3) {
		t.Fatalf("delete reported success on absent key")
	}
	if m.Len() != 4 {
		t.Fatalf("len=%d want=4", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("clear left %d entries", m.Len())
	}
}

func TestInsertMaxKeepsBestValue(t *testing.T) {
	testlog.Start(t)
	m := New[string, int](nil)

	offers := map[string][]int{
		"a": {5, 2, 9, 9, 1},
		"b": {-4, -1, -7},
		"c": {0},
	}
	for key, vals := range offers {
		for _, v := range vals {
			m.InsertMax(key, v)
		}
	}

	want := map[string]int{"a": 9, "b": -1, "c": 0}
	for key, expect := range want {
		if v, ok := m.Get(key); !ok || v != expect {
			t.Fatalf("key=%s got=%d ok=%v want=%d", key, v, ok, expect)
		}
	}
}

func TestInsertMaxConcurrent(t *testing.T) {
	testlog.Start(t)
	m := New[int, int](nil)

	const keys = 8
	const offersPerKey = 200
	var wg sync.WaitGroup
	for k := 0; k < keys; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(k)))
			for i := 0; i < offersPerKey; i++ {
				m.InsertMax(k, r.Intn(1000))
			}
			m.InsertMax(k, 1000+k)
		}(k)
	}
	wg.Wait()

	for k := 0; k < keys; k++ {
		if v, ok := m.Get(k); !ok || v != 1000+k {
			t.Fatalf("key=%d got=%d ok=%v want=%d", k, v, ok, 1000+k)
		}
	}
}

func TestRemoveMinDrainsInOrder(t *testing.T) {
	testlog.Start(t)
	m := New[int, string](nil)
	for _, k := range []int{9, 3, 7, 1, 5} {
		m.Insert(k, "v")
	}

	prev := -1
	for {
		k, _, ok := m.RemoveMin()
		if !ok {
			break
		}
		if k <= prev {
			t.Fatalf("non-increasing pop: prev=%d got=%d", prev, k)
		}
		prev = k
	}
	if _, _, ok := m.RemoveMin(); ok {
		t.Fatalf("empty map reported an entry")
	}
	if _, _, ok := m.RemoveMin(); ok {
		t.Fatalf("empty map reported an entry on repeat")
	}
}

func TestSharedLockDomain(t *testing.T) {
	testlog.Start(t)
	var mu sync.Mutex
	a := New[int, int](&mu)
	b := New[int, int](&mu)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.InsertMax(0, i)
			b.InsertMax(0, -i)
		}(i)
	}
	wg.Wait()

	if v, _ := a.Get(0); v != 99 {
		t.Fatalf("a got=%d want=99", v)
	}
	if v, _ := b.Get(0); v != 0 {
		t.Fatalf("b got=%d want=0", v)
	}
}
