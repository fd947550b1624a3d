package scheduler

import "container/heap"

// pqEntry is one priority-queue node. epoch lets the scheduler
// invalidate an entry whose ordering key (NextFire or Priority) was
// superseded by a later push, without a heap decrease-key operation.
// It is tracked separately from the handle's own validity generation
// so that reordering a handle never invalidates the handle itself.
type pqEntry struct {
	handle   EventHandle
	epoch    uint32
	nextFire TimeMs
	priority Priority
}

// pqHeap is a min-heap ordered, in order of decreasing significance,
// by NextFire, then Priority, then slot index. Two entries can never
// tie on all three fields because distinct slots always break the tie
// on index.
type pqHeap []pqEntry

func (h pqHeap) Len() int { return len(h) }

func (h pqHeap) Less(i, j int) bool {
	if h[i].nextFire != h[j].nextFire {
		return h[i].nextFire < h[j].nextFire
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].handle.Index < h[j].handle.Index
}

func (h pqHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pqHeap) Push(x interface{}) {
	*h = append(*h, x.(pqEntry))
}

func (h *pqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *pqHeap) push(e pqEntry) {
	heap.Push(h, e)
}

func (h *pqHeap) pop() pqEntry {
	return heap.Pop(h).(pqEntry)
}

func (h pqHeap) top() pqEntry {
	return h[0]
}
