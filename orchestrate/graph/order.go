package graph

import (
	"container/heap"
	"slices"
)

type stringMinHeap []string

func (h stringMinHeap) Len() int           { return len(h) }
func (h stringMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h stringMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stringMinHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *stringMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm over ids, where edges maps a vertex to the
// vertices that depend on it. The ready queue is a min-heap so ties resolve
// by id. A result shorter than ids means the graph has a cycle.
func topoOrder(ids []string, edges map[string][]string) []string {
	indeg := make(map[string]int, len(ids))
	for _, id := range ids {
		for _, next := range edges[id] {
			indeg[next]++
		}
	}

	ready := &stringMinHeap{}
	heap.Init(ready)
	for _, id := range ids {
		if indeg[id] == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, len(ids))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, next := range edges[id] {
			indeg[next]--
			if indeg[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path [v, ..., v], visiting vertices
// and edges in sorted order so the witness is stable.
func findCycle(ids []string, edges map[string][]string) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))

	var cycle []string
	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range edges[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	sorted := slices.Sorted(slices.Values(ids))
	for _, id := range sorted {
		if color[id] == white && dfs(id) {
			break
		}
	}

	slices.Reverse(cycle)
	return cycle
}
