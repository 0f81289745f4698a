package action_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticeflow/reactor/internal/action"
)

func TestReplaceSemantics(t *testing.T) {
	s := action.New[int]()
	s.Push(10, 0, 1)
	s.Push(10, 0, 2)

	got, ok := s.GetCurrent(10, 0)
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestNextMicrostepForOffsetNoBucket(t *testing.T) {
	s := action.New[string]()
	assert.Equal(t, uint32(5), s.NextMicrostepForOffset(99, 5))
}

func TestNextMicrostepForOffsetAdvances(t *testing.T) {
	s := action.New[string]()
	s.Push(10, 3, "x")
	assert.Equal(t, uint32(4), s.NextMicrostepForOffset(10, 0))
	assert.Equal(t, uint32(7), s.NextMicrostepForOffset(10, 7))
}

func TestPruningScenario(t *testing.T) {
	// spec.md §8 scenario 6: push at offsets {0,10,20}ms, clear_older_than(15ms,0).
	s := action.New[int]()
	s.Push(0, 0, 100)
	s.Push(10, 0, 200)
	s.Push(20, 0, 300)

	s.ClearOlderThan(15, 0)

	_, ok0 := s.GetCurrent(0, 0)
	_, ok10 := s.GetCurrent(10, 0)
	v20, ok20 := s.GetCurrent(20, 0)

	assert.False(t, ok0)
	assert.False(t, ok10)
	assert.True(t, ok20)
	assert.Equal(t, 300, v20)

	assert.Equal(t, uint32(0), s.NextMicrostepForOffset(0, 0))
}

func TestClearOlderThanDropsMicrostepsWithinBucket(t *testing.T) {
	s := action.New[int]()
	s.Push(10, 0, 1)
	s.Push(10, 1, 2)
	s.Push(10, 2, 3)

	s.ClearOlderThan(10, 2)

	_, ok0 := s.GetCurrent(10, 0)
	_, ok1 := s.GetCurrent(10, 1)
	v2, ok2 := s.GetCurrent(10, 2)

	assert.False(t, ok0)
	assert.False(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, 3, v2)
}

func TestEmptiedBucketRemovedEntirely(t *testing.T) {
	s := action.New[int]()
	s.Push(10, 0, 1)
	s.ClearOlderThan(20, 0)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint32(0), s.NextMicrostepForOffset(10, 0))
}
