package snowflake

import (
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	node := NewNode(1)

	const count = 10000
	seen := make(map[ID]bool, count)
	for i := 0; i < count; i++ {
		id := node.Generate()
		if seen[id] {
			t.Fatalf("duplicate id generated: %d", id)
		}
		seen[id] = true
	}
}

func TestGenerateMonotonic(t *testing.T) {
	node := NewNode(1)

	prev := node.Generate()
	for i := 0; i < 1000; i++ {
		id := node.Generate()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestGenerateConcurrent(t *testing.T) {
	node := NewNode(1)

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[ID]bool, workers*perWorker)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]ID, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, node.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("duplicate id generated: %d", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestNodeIDOutOfRangeFallsBack(t *testing.T) {
	node := NewNode(5000)
	if node.nodeID != 1 {
		t.Fatalf("nodeID = %d, want fallback 1", node.nodeID)
	}
}
