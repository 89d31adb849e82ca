package match

import "container/heap"

// boundedHeap keeps the best cap results. The root is the worst kept result
// so that a better newcomer replaces it in O(log k).
type boundedHeap struct {
	items []Result
	cap   int
}

func newBoundedHeap(capacity int) *boundedHeap {
	return &boundedHeap{items: make([]Result, 0, capacity), cap: capacity}
}

func (h *boundedHeap) Len() int           { return len(h.items) }
func (h *boundedHeap) Less(i, j int) bool { return better(&h.items[j], &h.items[i]) }
func (h *boundedHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *boundedHeap) Push(x any)         { h.items = append(h.items, x.(Result)) }

func (h *boundedHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

// offer adds r if the heap has room or r beats the worst kept result
func (h *boundedHeap) offer(r Result) {
	if h.cap <= 0 {
		return
	}
	if len(h.items) < h.cap {
		heap.Push(h, r)
		return
	}
	if better(&r, &h.items[0]) {
		h.items[0] = r
		heap.Fix(h, 0)
	}
}
