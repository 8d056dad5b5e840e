package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegalChildKinds(t *testing.T) {
	cases := []struct {
		parent Kind
		child  Kind
		legal  bool
	}{
		{KindCollection, KindGroup, true},
		{KindCollection, KindProject, false},
		{KindGroup, KindSubgroup, true},
		{KindGroup, KindProject, true},
		{KindGroup, KindFile, false},
		{KindSubgroup, KindSubgroup, true},
		{KindProject, KindDirectory, true},
		{KindProject, KindFile, true},
		{KindProject, KindProject, false},
		{KindDirectory, KindDirectory, true},
		{KindFile, KindFile, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.legal, tc.parent.Allows(tc.child), "%s -> %s", tc.parent, tc.child)
	}
	assert.False(t, KindFile.Expandable())
	assert.True(t, KindDirectory.Expandable())
}

func TestKindTextRoundTrip(t *testing.T) {
	for kind := range kindNames {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		var parsed Kind
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, kind, parsed)
	}
	var parsed Kind
	assert.Error(t, parsed.UnmarshalText([]byte("blob")))
}

func TestNodeStateTransitions(t *testing.T) {
	group := NewNode(GroupNodeID(1), KindGroup, "Infra")
	require.Equal(t, Unresolved, group.State())
	require.Empty(t, group.Children())

	require.NoError(t, group.MarkResolving())
	assert.ErrorIs(t, group.MarkResolving(), ErrInFlight)

	sub := NewNode(GroupNodeID(2), KindSubgroup, "Core")
	require.NoError(t, group.ApplyResolved([]*Node{sub}))
	assert.True(t, group.IsResolved())
	assert.Equal(t, group, sub.Parent())
	assert.ErrorIs(t, group.MarkResolving(), ErrAlreadyResolved)

	group.Reset()
	assert.Equal(t, Unresolved, group.State())
	assert.Empty(t, group.Children())
	assert.Nil(t, sub.Parent())
}

func TestMarkFailedClearsChildren(t *testing.T) {
	project := NewNode(ProjectNodeID(7), KindProject, "web")
	require.NoError(t, project.ApplyResolved([]*Node{NewNode(RepoNodeID(7, "README.md"), KindFile, "README.md")}))

	reason := errors.New("boom")
	project.MarkFailed(reason)
	assert.Equal(t, Failed, project.State())
	assert.Empty(t, project.Children())
	assert.ErrorIs(t, project.Err(), reason)

	require.NoError(t, project.MarkResolving())
	assert.NoError(t, project.Err())
}

func TestApplyResolvedRejectsIllegalChildren(t *testing.T) {
	group := NewNode(GroupNodeID(1), KindGroup, "Infra")
	err := group.ApplyResolved([]*Node{NewNode(RepoNodeID(1, "x"), KindFile, "x")})
	assert.ErrorIs(t, err, ErrIllegalChild)
	assert.Equal(t, Unresolved, group.State())

	file := NewNode(RepoNodeID(1, "a"), KindFile, "a")
	assert.ErrorIs(t, file.MarkResolving(), ErrNotExpandable)

	dup := NewNode(GroupNodeID(3), KindSubgroup, "dup")
	err = group.ApplyResolved([]*Node{dup, NewNode(GroupNodeID(3), KindSubgroup, "dup")})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestWatchObservesStateChanges(t *testing.T) {
	node := NewNode(GroupNodeID(1), KindGroup, "Infra")
	var seen []ResolutionState
	cancel := node.Watch(func(n *Node) {
		seen = append(seen, n.State())
	})

	require.NoError(t, node.MarkResolving())
	node.MarkFailed(errors.New("offline"))
	cancel()
	node.Reset()

	assert.Equal(t, []ResolutionState{Resolving, Failed}, seen)
}

func TestPathString(t *testing.T) {
	tree := NewTree("gitlab")
	infra := NewNode(GroupNodeID(1), KindGroup, "Infra")
	require.NoError(t, tree.Resolve(tree.Root(), []*Node{infra}))
	core := NewNode(GroupNodeID(2), KindSubgroup, "Core")
	require.NoError(t, tree.Resolve(infra, []*Node{core}))

	assert.Equal(t, "Infra / Core", core.PathString())
	assert.Equal(t, 2, core.Depth())
	assert.Equal(t, []*Node{tree.Root(), infra, core}, core.Lineage())
}
