package priority

import (
	"fmt"
	"math/rand"
	"testing"

	"ticker-orchestrator/internal/domain"
)

func TestQueue_OrdersByScoreDescending(t *testing.T) {
	q := newQueue(100)

	q.push(&domain.Task{ID: "low"}, 10)
	q.push(&domain.Task{ID: "high"}, 90)
	q.push(&domain.Task{ID: "mid"}, 50)

	want := []string{"high", "mid", "low"}
	for _, id := range want {
		got := q.pop()
		if got == nil || got.task.ID != id {
			t.Fatalf("pop: got %v, want %s", got, id)
		}
	}
	if q.pop() != nil {
		t.Error("pop on empty queue should return nil")
	}
}

func TestQueue_EqualScoresPreserveArrivalOrder(t *testing.T) {
	// Randomized batches of equal-score tasks must drain in arrival order.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		q := newQueue(0)
		scores := []float64{10, 20, 30}

		var arrival []string
		for i := 0; i < 50; i++ {
			score := scores[rng.Intn(len(scores))]
			id := fmt.Sprintf("t%d-s%v", i, score)
			q.push(&domain.Task{ID: id}, score)
			arrival = append(arrival, id)
		}

		lastScore := 1e18
		perScoreIdx := map[float64]int{}
		arrivalByScore := map[float64][]string{}
		for _, id := range arrival {
			var n int
			var score float64
			fmt.Sscanf(id, "t%d-s%f", &n, &score)
			arrivalByScore[score] = append(arrivalByScore[score], id)
		}

		for q.len() > 0 {
			entry := q.pop()
			if entry.score > lastScore {
				t.Fatalf("trial %d: scores not non-increasing: %v after %v", trial, entry.score, lastScore)
			}
			lastScore = entry.score

			bucket := arrivalByScore[entry.score]
			idx := perScoreIdx[entry.score]
			if idx >= len(bucket) || bucket[idx] != entry.task.ID {
				t.Fatalf("trial %d: equal-score order broken: got %s, want %s", trial, entry.task.ID, bucket[idx])
			}
			perScoreIdx[entry.score] = idx + 1
		}
	}
}

func TestQueue_BoundedCapacity(t *testing.T) {
	q := newQueue(2)

	if !q.push(&domain.Task{ID: "a"}, 1) || !q.push(&domain.Task{ID: "b"}, 2) {
		t.Fatal("pushes under capacity should succeed")
	}
	if q.push(&domain.Task{ID: "c"}, 3) {
		t.Error("push at capacity should be rejected")
	}
}

func TestQueue_RescoreKeepsArrivalOrderForTies(t *testing.T) {
	q := newQueue(0)
	for i := 0; i < 5; i++ {
		q.push(&domain.Task{ID: fmt.Sprintf("t%d", i)}, float64(i))
	}

	// Collapse every score to the same value; drain must follow arrival.
	q.rescore(func(*domain.Task) float64 { return 7 })

	for i := 0; i < 5; i++ {
		got := q.pop().task.ID
		want := fmt.Sprintf("t%d", i)
		if got != want {
			t.Fatalf("after rescore: got %s, want %s", got, want)
		}
	}
}
