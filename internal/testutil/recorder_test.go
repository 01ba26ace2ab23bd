package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_RecordsInOrder(t *testing.T) {
	r := NewRecorder[string]()
	_, ok := r.Last()
	assert.False(t, ok)

	r.Record("a")
	r.Record("b")
	r.Record("c")

	assert.Equal(t, []string{"a", "b", "c"}, r.All())
	assert.Equal(t, 3, r.Len())

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, "c", last)

	assert.Equal(t, []string{"b"}, r.Filter(func(s string) bool { return s == "b" }))

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRecorder_AllReturnsCopy(t *testing.T) {
	r := NewRecorder[int]()
	r.Record(1)

	all := r.All()
	all[0] = 99

	assert.Equal(t, []int{1}, r.All())
}
