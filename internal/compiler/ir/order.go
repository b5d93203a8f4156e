package ir

import "container/heap"

// idHeap is a min-heap of node handles.
type idHeap []NodeID

func (h idHeap) Len() int { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(NodeID)) }

func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *idHeap) push(id NodeID) { heap.Push(h, id) }
func (h *idHeap) pop() NodeID { return heap.Pop(h).(NodeID) }
