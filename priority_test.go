package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityTreeDefaultsToRootChild(t *testing.T) {
	tree := newPriorityTree()
	n := tree.nodeFor(1)
	assert.Nil(t, n.parent)
	assert.EqualValues(t, 15, n.weight)
}

func TestPriorityReprioritizeSetsParentAndWeight(t *testing.T) {
	tree := newPriorityTree()
	tree.nodeFor(1)
	tree.nodeFor(3)
	err := tree.reprioritize(3, PriorityParam{StreamDep: 1, Weight: 200})
	require.NoError(t, err)
	assert.Equal(t, tree.nodeFor(1), tree.nodeFor(3).parent)
	assert.EqualValues(t, 200, tree.nodeFor(3).weight)
}

func TestPrioritySelfDependencyIsStreamError(t *testing.T) {
	tree := newPriorityTree()
	err := tree.reprioritize(5, PriorityParam{StreamDep: 5})
	require.Error(t, err)
	_, ok := err.(*StreamError)
	assert.True(t, ok)
}

func TestPriorityExclusiveReparenting(t *testing.T) {
	tree := newPriorityTree()
	root := tree.nodeFor(1)
	tree.reprioritize(3, PriorityParam{StreamDep: 1})
	tree.reprioritize(5, PriorityParam{StreamDep: 1})
	require.NoError(t, tree.reprioritize(7, PriorityParam{StreamDep: 1, Exclusive: true}))

	seven := tree.nodeFor(7)
	assert.Equal(t, root, seven.parent)
	assert.Len(t, seven.children, 2)
	for _, c := range seven.children {
		assert.Equal(t, seven, c.parent)
	}
	assert.Equal(t, []*priorityNode{seven}, root.children)
}

func TestPriorityCloseRetiresIntoIdleHistory(t *testing.T) {
	tree := newPriorityTree()
	tree.nodeFor(9)
	tree.close(9)
	assert.True(t, tree.wasRecentlyClosed(9))
	_, exists := tree.nodes[9]
	assert.False(t, exists)
}

func TestPriorityIdleHistoryIsBounded(t *testing.T) {
	tree := newPriorityTree()
	for i := uint32(1); i <= priorityIdleHistoryLimit+10; i++ {
		tree.nodeFor(i)
		tree.close(i)
	}
	assert.LessOrEqual(t, len(tree.idleHistory), priorityIdleHistoryLimit)
	assert.False(t, tree.wasRecentlyClosed(1), "the oldest entries should have been pruned")
}

func TestPriorityPickNextFavorsHigherWeight(t *testing.T) {
	tree := newPriorityTree()
	heavy := tree.nodeFor(1)
	heavy.weight = 255
	light := tree.nodeFor(3)
	light.weight = 0

	ready := map[uint32]bool{1: true, 3: true}
	counts := map[uint32]int{}
	for i := 0; i < 100; i++ {
		id, ok := tree.pickNext(ready)
		require.True(t, ok)
		counts[id]++
	}
	assert.Greater(t, counts[1], counts[3])
}
