package sched

import "github.com/quotaflow/quotaflow/internal/core"

// admissionQueue holds pending requests ordered by priority class, FIFO
// within a class. Not safe for concurrent use; the scheduler serializes
// access.
type admissionQueue struct {
	items []*core.Request
}

// push inserts the request ahead of the first entry whose priority is
// strictly lower. Equal-priority entries are left in place, which preserves
// arrival order within a class.
func (q *admissionQueue) push(req *core.Request) {
	rank := req.Priority.Rank()
	at := len(q.items)
	for i, item := range q.items {
		if item.Priority.Rank() > rank {
			at = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[at+1:], q.items[at:])
	q.items[at] = req
}

// pop removes and returns the head of the queue, nil when empty.
func (q *admissionQueue) pop() *core.Request {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head
}

func (q *admissionQueue) len() int {
	return len(q.items)
}

// drain empties the queue and returns the removed requests.
func (q *admissionQueue) drain() []*core.Request {
	removed := q.items
	q.items = nil
	return removed
}
