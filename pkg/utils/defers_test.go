package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefersCallInReverseOrder(t *testing.T) {
	calls := []int{}
	defers := NewDefers()
	defers.Add(func() { calls = append(calls, 1) })
	defers.Add(func() { calls = append(calls, 2) })
	defers.Add(func() { calls = append(calls, 3) })
	defers.CallAll()
	assert.Equal(t, []int{3, 2, 1}, calls)
}

func TestDefersCallAllOnlyOnce(t *testing.T) {
	count := 0
	defers := NewDefers()
	defers.Add(func() { count++ })
	defers.CallAll()
	defers.CallAll()
	assert.Equal(t, 1, count)
}
