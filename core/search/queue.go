package search

import "container/heap"

type item struct {
	node     string
	priority float64
	g        float64
	seq      int
}

// frontier is a min-heap on priority; insertion order breaks ties.
type frontier []*item

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].priority != f[j].priority {
		return f[i].priority < f[j].priority
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*item)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}

type queue struct {
	f   frontier
	seq int
}

func (q *queue) push(node string, priority, g float64) {
	heap.Push(&q.f, &item{node: node, priority: priority, g: g, seq: q.seq})
	q.seq++
}

func (q *queue) pop() *item { return heap.Pop(&q.f).(*item) }

func (q *queue) empty() bool { return q.f.Len() == 0 }
