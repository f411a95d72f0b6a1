package services

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var wg sync.WaitGroup
	counts := map[string]int{}
	var mu sync.Mutex
	active := map[string]int{}

	for i := 0; i < 50; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()

			mu.Lock()
			active[key]++
			if active[key] > 1 {
				mu.Unlock()
				t.Errorf("two holders for key %q", key)
				return
			}
			mu.Unlock()

			mu.Lock()
			counts[key]++
			active[key]--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts["a"] != 25 || counts["b"] != 25 {
		t.Fatalf("counts=%v", counts)
	}
	if km.Len() != 0 {
		t.Fatalf("table not drained: %d", km.Len())
	}
}
