package simulation

import (
	"container/heap"

	"github.com/kilianp07/fleetsim/core/model"
)

// releaseQueue orders scheduled requests by (creation tick, -priority, id).
type releaseQueue []*model.Request

func (q releaseQueue) Len() int { return len(q) }
func (q releaseQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}
func (q releaseQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *releaseQueue) Push(x any)   { *q = append(*q, x.(*model.Request)) }
func (q *releaseQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return r
}

func (q *releaseQueue) push(r *model.Request) { heap.Push(q, r) }

// popDue removes and returns every request created at or before tick.
func (q *releaseQueue) popDue(tick int) []*model.Request {
	var out []*model.Request
	for q.Len() > 0 && (*q)[0].CreatedAt <= tick {
		out = append(out, heap.Pop(q).(*model.Request))
	}
	return out
}

// forecast counts upcoming requests by origin for creation ticks in
// (from, to].
func (q releaseQueue) forecast(from, to int) map[string]int {
	out := map[string]int{}
	for _, r := range q {
		if r.CreatedAt > from && r.CreatedAt <= to {
			out[r.Origin]++
		}
	}
	return out
}
