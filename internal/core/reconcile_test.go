package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedView(t *testing.T) {
	prefetched := []DisplayMessage{{ID: "m1", Text: "from snapshot"}}
	v := NewFeedView(prefetched)

	assert.True(t, v.Loading())
	assert.Equal(t, prefetched, v.Messages())

	v.Apply([]DisplayMessage{{ID: "m1"}, {ID: "m2"}})
	assert.False(t, v.Loading())
	assert.Len(t, v.Messages(), 2)
}

func TestFeedView_LiveEmptyWins(t *testing.T) {
	v := NewFeedView([]DisplayMessage{{ID: "stale"}})
	v.Apply(nil)

	assert.False(t, v.Loading())
	assert.NotNil(t, v.Messages())
	assert.Empty(t, v.Messages())
}

func TestFeedView_NilSnapshot(t *testing.T) {
	v := NewFeedView(nil)
	assert.NotNil(t, v.Messages())
	assert.Empty(t, v.Messages())
}
