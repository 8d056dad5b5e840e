package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labtree/internal/config"
	"labtree/internal/domain"
)

func buildTree(t *testing.T) *domain.Tree {
	t.Helper()
	tree := domain.NewTree("Groups")
	infra := domain.NewNode(domain.GroupNodeID(1), domain.KindGroup, "Infra")
	web := domain.NewNode(domain.GroupNodeID(2), domain.KindGroup, "Web")
	require.NoError(t, tree.Resolve(tree.Root(), []*domain.Node{infra, web}))
	alpha := domain.NewNode(domain.ProjectNodeID(10), domain.KindProject, "ProjectAlpha")
	beta := domain.NewNode(domain.ProjectNodeID(11), domain.KindProject, "ProjectBeta")
	require.NoError(t, tree.Resolve(infra, []*domain.Node{alpha, beta}))
	readme := domain.NewNode(domain.RepoNodeID(10, "README.md"), domain.KindFile, "README.md")
	main := domain.NewNode(domain.RepoNodeID(10, "main.go"), domain.KindFile, "main.go")
	require.NoError(t, tree.Resolve(alpha, []*domain.Node{readme, main}))
	return tree
}

func ids(rows []VisibleNode) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Node.ID)
	}
	return out
}

func TestVisibleNodesFollowExpandedRows(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))

	assert.Equal(t, []string{"root", "group:1", "group:2"}, ids(appState.VisibleNodes()))

	appState.SetExpanded("group:1", true)
	rows := appState.VisibleNodes()
	assert.Equal(t, []string{"root", "group:1", "project:10", "project:11", "group:2"}, ids(rows))
	assert.Equal(t, 2, rows[2].Depth)
}

func TestCursorMovesAndClamps(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))

	appState.MoveCursor(10)
	assert.Equal(t, 2, appState.Cursor)
	assert.Equal(t, "group:2", appState.CurrentNode().ID)
	appState.MoveCursor(-10)
	assert.Equal(t, 0, appState.Cursor)
}

func TestCollapseClosesThenMovesToParent(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))
	appState.SetExpanded("group:1", true)
	require.True(t, appState.CursorTo("project:10"))

	appState.Collapse()
	assert.Equal(t, "group:1", appState.CurrentNode().ID)
	appState.Collapse()
	assert.False(t, appState.IsExpanded("group:1"))
	assert.Equal(t, "group:1", appState.CurrentNode().ID)
}

func TestApplySearchRevealsAncestors(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))

	appState.ApplySearch("main", []string{domain.RepoNodeID(10, "main.go")})
	assert.True(t, appState.IsExpanded("group:1"))
	assert.True(t, appState.IsExpanded("project:10"))
	rows := appState.VisibleNodes()
	assert.Equal(t, []string{"root", "group:1", "project:10", "repo:10:main.go"}, ids(rows))
	assert.True(t, rows[3].Match)
	assert.Equal(t, "repo:10:main.go", appState.CurrentNode().ID)
	assert.Equal(t, 1, appState.MatchCount())

	appState.ClearFilters()
	assert.Len(t, appState.VisibleNodes(), 7)
}

func TestExtensionFilter(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))
	appState.SetExpanded("group:1", true)
	appState.SetExpanded("project:10", true)

	appState.FilterExt = ".md"
	assert.Equal(t, []string{"root", "group:1", "project:10", "repo:10:README.md"}, ids(appState.VisibleNodes()))
}

func TestSetTreeDropsUnknownRows(t *testing.T) {
	appState := NewState(config.DefaultConfig())
	appState.SetTree(buildTree(t))
	appState.SetExpanded("group:1", true)
	appState.SetExpanded("group:99", true)
	appState.MoveCursor(4)

	appState.SetTree(domain.NewTree("Groups"))
	assert.False(t, appState.IsExpanded("group:1"))
	assert.False(t, appState.IsExpanded("group:99"))
	assert.True(t, appState.IsExpanded(domain.RootID))
	assert.Equal(t, 0, appState.Cursor)
}
