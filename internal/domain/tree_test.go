package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeIndexFollowsResolution(t *testing.T) {
	tree := NewTree("gitlab")
	infra := NewNode(GroupNodeID(1), KindGroup, "Infra")
	web := NewNode(GroupNodeID(2), KindGroup, "Web")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{infra, web}))

	core := NewNode(GroupNodeID(3), KindSubgroup, "Core")
	require.NoError(t, tree.Resolve(infra, []*Node{core}))
	assert.Equal(t, 4, tree.Len())
	assert.True(t, tree.Contains(core))

	tree.Reset(infra)
	_, ok := tree.Lookup(core.ID)
	assert.False(t, ok)
	assert.False(t, tree.Contains(core))
	assert.Equal(t, 3, tree.Len())
}

func TestTreeResolveReplacesWholesale(t *testing.T) {
	tree := NewTree("gitlab")
	old := NewNode(GroupNodeID(1), KindGroup, "Old")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{old}))

	replacement := NewNode(GroupNodeID(2), KindGroup, "New")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{replacement}))

	_, ok := tree.Lookup(old.ID)
	assert.False(t, ok)
	assert.Equal(t, []*Node{replacement}, tree.Root().Children())
}

func TestTreeRejectsIDsOwnedElsewhere(t *testing.T) {
	tree := NewTree("gitlab")
	infra := NewNode(GroupNodeID(1), KindGroup, "Infra")
	web := NewNode(GroupNodeID(2), KindGroup, "Web")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{infra, web}))

	err := tree.Resolve(web, []*Node{NewNode(GroupNodeID(1), KindSubgroup, "Infra again")})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, Unresolved, web.State())
}

func TestTreeWalkPreOrder(t *testing.T) {
	tree := NewTree("gitlab")
	infra := NewNode(GroupNodeID(1), KindGroup, "Infra")
	web := NewNode(GroupNodeID(2), KindGroup, "Web")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{infra, web}))
	core := NewNode(GroupNodeID(3), KindSubgroup, "Core")
	require.NoError(t, tree.Resolve(infra, []*Node{core}))

	var labels []string
	tree.Walk(func(node *Node, depth int) bool {
		labels = append(labels, node.Label)
		return true
	})
	assert.Equal(t, []string{"gitlab", "Infra", "Core", "Web"}, labels)

	labels = nil
	tree.Walk(func(node *Node, depth int) bool {
		labels = append(labels, node.Label)
		return node.Kind == KindCollection
	})
	assert.Equal(t, []string{"gitlab", "Infra", "Web"}, labels)
}
