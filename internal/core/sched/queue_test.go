package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quotaflow/quotaflow/internal/core"
)

func queued(id string, priority core.Priority) *core.Request {
	return &core.Request{ID: id, Endpoint: "/users", Priority: priority}
}

func TestQueueOrdersByPriority(t *testing.T) {
	var q admissionQueue
	q.push(queued("a", core.PriorityLow))
	q.push(queued("b", core.PriorityNormal))
	q.push(queued("c", core.PriorityHigh))
	q.push(queued("d", core.PriorityNormal))

	require.Equal(t, 4, q.len())

	var ids []string
	for req := q.pop(); req != nil; req = q.pop() {
		ids = append(ids, req.ID)
	}
	require.Equal(t, []string{"c", "b", "d", "a"}, ids)
}

func TestQueueFIFOWithinClass(t *testing.T) {
	var q admissionQueue
	for _, id := range []string{"first", "second", "third"} {
		q.push(queued(id, core.PriorityNormal))
	}

	require.Equal(t, "first", q.pop().ID)
	require.Equal(t, "second", q.pop().ID)
	require.Equal(t, "third", q.pop().ID)
}

func TestQueuePopEmpty(t *testing.T) {
	var q admissionQueue
	require.Nil(t, q.pop())
	require.Equal(t, 0, q.len())
}

func TestQueueDrain(t *testing.T) {
	var q admissionQueue
	q.push(queued("a", core.PriorityNormal))
	q.push(queued("b", core.PriorityHigh))

	removed := q.drain()
	require.Len(t, removed, 2)
	require.Equal(t, 0, q.len())
	require.Nil(t, q.pop())
}
