package graph

import (
	"container/heap"
	"slices"

	"github.com/ldi/metis/internal/errors"
)

// successorsLocked returns the targets of the ordering edges leaving id, in
// edge creation order, ignoring the edge with id skip.
func (s *Store) successorsLocked(id, skip string) []string {
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.DependsOn))
	for _, depID := range t.DependsOn {
		d := s.deps[depID]
		if depID == skip || !d.Type.Ordering() {
			continue
		}
		out = append(out, d.TargetTaskID)
	}
	return out
}

// pathLocked searches depth-first from 'from' along ordering edges and
// returns the first path that reaches 'to' (both ends included), or nil.
// Each task is visited at most once, so the search is O(V+E).
func (s *Store) pathLocked(from, to, skip string) []string {
	parent := map[string]string{from: ""}
	stack := []string{from}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == to {
			var path []string
			for n := cur; n != ""; n = parent[n] {
				path = append(path, n)
			}
			slices.Reverse(path)
			return path
		}

		next := s.successorsLocked(cur, skip)
		// push in reverse so the earliest edge is explored first
		for i := len(next) - 1; i >= 0; i-- {
			n := next[i]
			if _, seen := parent[n]; seen {
				continue
			}
			parent[n] = cur
			stack = append(stack, n)
		}
	}
	return nil
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder returns task ids ordered so that every ordering edge
// source -> target has the source first. Ties are broken by creation order.
func (s *Store) TopologicalOrder() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int, len(s.taskOrder))
	for i, id := range s.taskOrder {
		index[id] = i
	}

	indeg := make([]int, len(s.taskOrder))
	for _, id := range s.taskOrder {
		for _, succ := range s.successorsLocked(id, "") {
			indeg[index[succ]]++
		}
	}

	ready := &indexHeap{}
	for i, n := range indeg {
		if n == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(s.taskOrder))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		id := s.taskOrder[i]
		out = append(out, id)
		for _, succ := range s.successorsLocked(id, "") {
			j := index[succ]
			indeg[j]--
			if indeg[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}

	if len(out) != len(s.taskOrder) {
		return nil, errors.Cyclic(nil)
	}
	return out, nil
}
