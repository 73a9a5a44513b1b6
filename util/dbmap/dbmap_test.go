package dbmap

import (
	"sync"
	"testing"
)

func TestInsertVisibleAfterUpdate(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)

	if _, ok := m.Get("a"); ok {
		t.Fatalf("staged entry must not be readable before Update")
	}
	m.Update()
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1 after Update, got %v, %v", v, ok)
	}
}

func TestUpdateMergesOverPreviousReadView(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Update()

	m.Insert("b", 20)
	m.Insert("c", 3)
	m.Update()

	if v, _ := m.Get("a"); v != 1 {
		t.Fatalf("expected untouched entry a=1 to survive, got %d", v)
	}
	if v, _ := m.Get("b"); v != 20 {
		t.Fatalf("expected staged write to win, got b=%d", v)
	}
	if v, _ := m.Get("c"); v != 3 {
		t.Fatalf("expected c=3, got %d", v)
	}
	if n := m.Len(); n != 3 {
		t.Fatalf("expected 3 published entries, got %d", n)
	}
}

func TestUpdateIdempotentWhenClean(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Update()

	m.Update()
	m.Update()

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1 after repeated clean updates, got %v, %v", v, ok)
	}
	if n := m.Len(); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	if keys := m.WKeys(); len(keys) != 0 {
		t.Fatalf("expected empty write view, got %d staged keys", len(keys))
	}
}

func TestRemoveQueuesReadViewRemoval(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Update()

	m.Remove("a")
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("published entry must stay readable until Update")
	}
	m.Update()
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected a removed after Update")
	}
}

func TestRemoveDiscardsStagedEntry(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Remove("a")
	m.Update()
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected staged entry dropped by Remove")
	}
}

func TestUpsertSeedsFromPublishedValue(t *testing.T) {
	m := New[string, int]()
	m.Insert("n", 5)
	m.Update()

	m.Upsert("n", func(cur int, ok bool) int {
		if !ok {
			t.Fatalf("expected published value to seed the upsert")
		}
		return cur + 1
	})
	m.Upsert("n", func(cur int, ok bool) int { return cur + 1 })
	m.Update()

	if v, _ := m.Get("n"); v != 7 {
		t.Fatalf("expected accumulated value 7, got %d", v)
	}
}

func TestConcurrentUpsertAccumulates(t *testing.T) {
	const writers, perWriter = 16, 500
	m := New[string, int]()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				m.Upsert("counter", func(cur int, ok bool) int { return cur + 1 })
			}
		}()
	}
	wg.Wait()
	m.Update()

	if v, _ := m.Get("counter"); v != writers*perWriter {
		t.Fatalf("expected counter %d, got %d", writers*perWriter, v)
	}
}

func TestLazyUpdateSkipsCleanShards(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Update()

	m.LazyUpdate()
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("expected read view unchanged by clean LazyUpdate, got %v, %v", v, ok)
	}

	m.Insert("b", 2)
	m.LazyUpdate()
	if _, ok := m.Get("b"); !ok {
		t.Fatalf("expected dirty shard promoted by LazyUpdate")
	}
}

func TestClearDropsPendingWrites(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Update()

	m.Insert("b", 2)
	m.Remove("a")
	m.Clear()
	m.Update()

	if _, ok := m.Get("a"); !ok {
		t.Fatalf("expected queued removal dropped by Clear")
	}
	if _, ok := m.Get("b"); ok {
		t.Fatalf("expected staged insert dropped by Clear")
	}
}

func TestResetEmptiesBothViews(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)
	m.Update()
	m.Insert("b", 2)

	m.Reset()
	m.Update()

	if n := m.Len(); n != 0 {
		t.Fatalf("expected empty map after Reset, got %d entries", n)
	}
}

func TestCustomHasherShardsConsistently(t *testing.T) {
	m := NewWithHasher[uint64, string](Uint64Hasher, 8)
	for i := uint64(0); i < 1000; i++ {
		m.Insert(i, "v")
	}
	m.Update()
	if n := m.Len(); n != 1000 {
		t.Fatalf("expected 1000 entries, got %d", n)
	}
	if _, ok := m.Get(999); !ok {
		t.Fatalf("expected key 999 present")
	}
}
