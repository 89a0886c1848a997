package priority

import (
	"container/heap"

	"ticker-orchestrator/internal/domain"
)

// queuedTask is one heap entry. seq is the arrival order and breaks score
// ties, which keeps the queue stable for equal-priority tasks.
type queuedTask struct {
	task  *domain.Task
	score float64
	seq   int64
}

// taskHeap orders by score descending, then seq ascending.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queuedTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// queue is a bounded stable priority queue. Not goroutine-safe; the
// Manager serializes access.
type queue struct {
	heap    taskHeap
	maxSize int
	nextSeq int64
}

func newQueue(maxSize int) *queue {
	return &queue{maxSize: maxSize}
}

// push adds a task with the given score. Returns false when the queue is
// at capacity.
func (q *queue) push(task *domain.Task, score float64) bool {
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return false
	}
	heap.Push(&q.heap, &queuedTask{task: task, score: score, seq: q.nextSeq})
	q.nextSeq++
	return true
}

// peek returns the highest-priority entry without removing it.
func (q *queue) peek() *queuedTask {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// pop removes and returns the highest-priority entry.
func (q *queue) pop() *queuedTask {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*queuedTask)
}

func (q *queue) len() int {
	return len(q.heap)
}

// rescore recomputes every entry's score in place and restores the heap
// invariant. Sequence numbers are kept, so equal-score arrival order is
// preserved across rescoring.
func (q *queue) rescore(fn func(*domain.Task) float64) {
	for _, entry := range q.heap {
		entry.score = fn(entry.task)
	}
	heap.Init(&q.heap)
}
