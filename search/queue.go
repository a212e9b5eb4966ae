package search

import "github.com/erikjearl/SEPIA-Environments/game"

// node is a frontier entry. seq breaks priority ties in insertion order so
// identical inputs always pop in the same order.
type node struct {
	state    *game.WorldState
	priority float64
	seq      uint64
	index    int
}

// frontier is a min-heap of nodes for container/heap.
type frontier []*node

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].priority != f[j].priority {
		return f[i].priority < f[j].priority
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}

func (f *frontier) Push(x any) {
	n := x.(*node)
	n.index = len(*f)
	*f = append(*f, n)
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*f = old[:n-1]
	return item
}
