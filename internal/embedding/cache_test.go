package embedding

import (
	"fmt"
	"sync"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("alpha"); ok || v != nil {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("alpha", []float32{0.1, 0.2, 0.3})
	v, ok := c.Get("alpha")
	if !ok || len(v) != 3 || v[0] != 0.1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("beta", []float32{0.4, 0.5})
	c.Set("gamma", []float32{0.6}) // evicts alpha
	if _, ok := c.Get("alpha"); ok {
		t.Error("expected alpha to be evicted")
	}
	if _, ok := c.Get("beta"); !ok {
		t.Error("expected beta to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("alpha", []float32{1})
	c.Set("beta", []float32{2})

	// Touching alpha makes beta the oldest entry.
	if _, ok := c.Get("alpha"); !ok {
		t.Fatal("alpha should be cached")
	}
	c.Set("gamma", []float32{3})

	if _, ok := c.Get("beta"); ok {
		t.Error("beta should have been evicted as least recently used")
	}
	if _, ok := c.Get("alpha"); !ok {
		t.Error("alpha should survive, it was touched last")
	}
}

// Gets rewire the recency list, so hammering a few hot keys from many
// goroutines must stay race-free.
func TestEmbeddingCache_ConcurrentAccess(t *testing.T) {
	c := NewEmbeddingCache(16)
	keys := []string{"q1", "q2", "q3", "q4"}
	for _, k := range keys {
		c.Set(k, []float32{1, 2, 3})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				key := keys[(g+i)%len(keys)]
				if v, ok := c.Get(key); !ok || len(v) != 3 {
					t.Errorf("Get(%s) = %v, %v", key, v, ok)
					return
				}
				if i%100 == 0 {
					c.Set(fmt.Sprintf("extra-%d-%d", g, i), []float32{0})
				}
			}
		}(g)
	}
	wg.Wait()

	for _, k := range keys {
		if _, ok := c.Get(k); !ok {
			t.Errorf("hot key %s fell out of a 16-entry cache", k)
		}
	}
}
