package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/queue"
	"github.com/latticeflow/reactor/internal/tag"
)

func TestPeekReturnsEarliestTag(t *testing.T) {
	q := queue.New()
	q.Push(tag.New(30, 0), 1, nil)
	q.Push(tag.New(10, 0), 2, nil)
	q.Push(tag.New(20, 0), 3, nil)

	got, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, tag.New(10, 0), got)
}

func TestDrainTagCollectsOnlyMatchingTag(t *testing.T) {
	q := queue.New()
	q.Push(tag.New(10, 0), ids.ActionID(1), "a")
	q.Push(tag.New(10, 0), ids.ActionID(2), "b")
	q.Push(tag.New(20, 0), ids.ActionID(3), "c")

	drained, ok := q.DrainTag()
	assert.True(t, ok)
	assert.Len(t, drained, 2)

	next, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, tag.New(20, 0), next)
}

func TestStableInsertionOrderWithinSameTag(t *testing.T) {
	q := queue.New()
	q.Push(tag.New(5, 0), ids.ActionID(1), "first")
	q.Push(tag.New(5, 0), ids.ActionID(2), "second")
	q.Push(tag.New(5, 0), ids.ActionID(3), "third")

	drained, _ := q.DrainTag()
	assert.Equal(t, "first", drained[0].Payload)
	assert.Equal(t, "second", drained[1].Payload)
	assert.Equal(t, "third", drained[2].Payload)
}

func TestEmptyQueue(t *testing.T) {
	q := queue.New()
	assert.True(t, q.Empty())
	_, ok := q.DrainTag()
	assert.False(t, ok)
}
