package explorer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labtree/internal/domain"
	"labtree/internal/metrics"
	"labtree/internal/services"
)

const testSession = "gitlab.example.com/ops"

func infraRemote() *services.MockRemote {
	remote := services.NewMockRemote()
	remote.AddGroup(1, "Infra", 0)
	remote.AddGroup(2, "Web", 0)
	remote.AddGroup(3, "Core", 1)
	return remote
}

func newExplorer(t *testing.T, remote services.RemoteClient, store services.SnapshotStore) *Explorer {
	t.Helper()
	explorer := New(remote, store, Options{Metrics: metrics.New()})
	t.Cleanup(explorer.Teardown)
	return explorer
}

func drain(t *testing.T, explorer *Explorer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, explorer.Drain(ctx))
}

func expandAndDrain(t *testing.T, explorer *Explorer, id string) {
	t.Helper()
	outcome, err := explorer.Expand(id)
	require.NoError(t, err)
	require.Equal(t, Dispatched, outcome)
	drain(t, explorer)
}

func labels(nodes []*domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.Label)
	}
	return out
}

func TestExpandResolvedNodeMakesNoCalls(t *testing.T) {
	remote := infraRemote()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	assert.False(t, explorer.Initialize(testSession))

	expandAndDrain(t, explorer, domain.RootID)
	root := explorer.Tree().Root()
	assert.Equal(t, domain.Resolved, root.State())
	assert.Equal(t, []string{"Infra", "Web"}, labels(root.Children()))
	assert.Equal(t, 1, remote.Calls(services.OpListGroups))

	outcome, err := explorer.Expand(domain.RootID)
	require.NoError(t, err)
	assert.Equal(t, AlreadyResolved, outcome)
	assert.Equal(t, 1, remote.TotalCalls())
	assert.Equal(t, 0, explorer.Pending())
}

func TestRepeatedExpandWhileResolvingDispatchesOnce(t *testing.T) {
	remote := infraRemote()
	release := remote.Hold()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)

	outcome, err := explorer.Expand(domain.RootID)
	require.NoError(t, err)
	assert.Equal(t, Dispatched, outcome)
	for i := 0; i < 5; i++ {
		outcome, err := explorer.Expand(domain.RootID)
		require.NoError(t, err)
		assert.Equal(t, InFlight, outcome)
	}
	assert.Equal(t, domain.Resolving, explorer.Tree().Root().State())

	release()
	drain(t, explorer)
	assert.Equal(t, 1, remote.Calls(services.OpListGroups))
	assert.Equal(t, domain.Resolved, explorer.Tree().Root().State())
}

func TestResolvedTreeReloadsFromCacheWithoutRemoteCalls(t *testing.T) {
	store := services.NewFileStore(t.TempDir())
	first := newExplorer(t, infraRemote(), store)
	first.Initialize(testSession)
	expandAndDrain(t, first, domain.RootID)
	expandAndDrain(t, first, domain.GroupNodeID(1))
	first.Teardown()

	remote := infraRemote()
	second := newExplorer(t, remote, store)
	require.True(t, second.Initialize(testSession))

	root := second.Tree().Root()
	assert.Equal(t, domain.Resolved, root.State())
	assert.Equal(t, []string{"Infra", "Web"}, labels(root.Children()))

	infra, ok := second.Lookup(domain.GroupNodeID(1))
	require.True(t, ok)
	assert.Equal(t, domain.Resolved, infra.State())
	require.Len(t, infra.Children(), 1)
	core := infra.Children()[0]
	assert.Equal(t, "Core", core.Label)
	assert.Equal(t, domain.KindSubgroup, core.Kind)
	assert.Equal(t, "Infra / Core", core.PathString())

	web, ok := second.Lookup(domain.GroupNodeID(2))
	require.True(t, ok)
	assert.Equal(t, domain.Unresolved, web.State())

	outcome, err := second.Expand(domain.GroupNodeID(1))
	require.NoError(t, err)
	assert.Equal(t, AlreadyResolved, outcome)
	assert.Equal(t, 0, remote.TotalCalls())
}

func TestEmptyResolvedNodeStaysResolvedAfterReload(t *testing.T) {
	store := services.NewFileStore(t.TempDir())
	first := newExplorer(t, infraRemote(), store)
	first.Initialize(testSession)
	expandAndDrain(t, first, domain.RootID)
	expandAndDrain(t, first, domain.GroupNodeID(2))
	first.Teardown()

	remote := infraRemote()
	second := newExplorer(t, remote, store)
	require.True(t, second.Initialize(testSession))
	web, ok := second.Lookup(domain.GroupNodeID(2))
	require.True(t, ok)
	assert.Equal(t, domain.Resolved, web.State())
	assert.Empty(t, web.Children())
}

func TestNetworkFailureIsRetriedOnNextExpand(t *testing.T) {
	remote := infraRemote()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	remote.FailNext(services.OpListGroupMembers, &services.RemoteError{Op: "list", Kind: services.ErrNetwork})
	expandAndDrain(t, explorer, domain.GroupNodeID(1))

	infra, _ := explorer.Lookup(domain.GroupNodeID(1))
	assert.Equal(t, domain.Failed, infra.State())
	assert.Equal(t, services.KindNetwork, services.Classify(infra.Err()))
	assert.Empty(t, infra.Children())

	matches := explorer.Search("infra")
	require.Len(t, matches, 1)
	assert.Equal(t, "Infra", matches[0].Path)

	expandAndDrain(t, explorer, domain.GroupNodeID(1))
	assert.Equal(t, domain.Resolved, infra.State())
	assert.Equal(t, []string{"Core"}, labels(infra.Children()))
	assert.Equal(t, 2, remote.Calls(services.OpListGroupMembers))
}

func TestNotFoundIsPermanentUntilRefresh(t *testing.T) {
	remote := infraRemote()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	remote.FailNext(services.OpListGroupMembers, &services.RemoteError{Op: "list", Status: 404, Kind: services.ErrNotFound})
	expandAndDrain(t, explorer, domain.GroupNodeID(2))

	_, err := explorer.Expand(domain.GroupNodeID(2))
	assert.ErrorIs(t, err, ErrPermanentFailure)
	assert.Equal(t, 1, remote.Calls(services.OpListGroupMembers))

	require.NoError(t, explorer.Refresh())
	drain(t, explorer)
	expandAndDrain(t, explorer, domain.GroupNodeID(2))
	web, _ := explorer.Lookup(domain.GroupNodeID(2))
	assert.Equal(t, domain.Resolved, web.State())
}

func TestAuthFailureSurfacesOnNode(t *testing.T) {
	remote := infraRemote()
	remote.FailNext(services.OpListGroups, &services.RemoteError{Op: "groups", Status: 401, Kind: services.ErrAuth})
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	root := explorer.Tree().Root()
	assert.Equal(t, domain.Failed, root.State())
	assert.ErrorIs(t, root.Err(), services.ErrAuth)

	expandAndDrain(t, explorer, domain.RootID)
	assert.Equal(t, domain.Resolved, root.State())
}

func TestSearchMatchesInTraversalOrder(t *testing.T) {
	remote := services.NewMockRemote()
	remote.AddGroup(1, "Infra", 0)
	remote.AddProject(10, "ProjectAlpha", 1, "main")
	remote.AddProject(11, "ProjectBeta", 1, "main")
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)
	expandAndDrain(t, explorer, domain.GroupNodeID(1))
	calls := remote.TotalCalls()

	matches := explorer.Search("proj")
	require.Len(t, matches, 2)
	assert.Equal(t, "Infra / ProjectAlpha", matches[0].Path)
	assert.Equal(t, "Infra / ProjectBeta", matches[1].Path)
	assert.Equal(t, domain.KindProject, matches[0].Kind)

	assert.Len(t, explorer.Search("PROJECTBETA"), 1)
	assert.Empty(t, explorer.Search("nothing"))
	assert.NotNil(t, explorer.Search(""))
	assert.Equal(t, calls, remote.TotalCalls())
}

func TestRepositoryTreeUsesProjectRef(t *testing.T) {
	remote := services.NewMockRemote()
	remote.AddGroup(1, "Infra", 0)
	remote.AddProject(10, "tools", 1, "develop")
	remote.AddFile(10, "README.md", []byte("hi"))
	remote.AddFile(10, "scripts/deploy.sh", []byte("#!/bin/sh"))
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)
	expandAndDrain(t, explorer, domain.GroupNodeID(1))
	expandAndDrain(t, explorer, domain.ProjectNodeID(10))

	project, _ := explorer.Lookup(domain.ProjectNodeID(10))
	children := project.Children()
	require.Len(t, children, 2)
	assert.Equal(t, domain.KindDirectory, children[0].Kind)
	assert.Equal(t, "scripts", children[0].Label)
	assert.Equal(t, "develop", children[0].Meta.Ref)
	assert.Equal(t, int64(10), children[1].Meta.ProjectID)

	expandAndDrain(t, explorer, children[0].ID)
	assert.Equal(t, []string{"deploy.sh"}, labels(children[0].Children()))

	_, err := explorer.Expand(children[1].ID)
	assert.ErrorIs(t, err, ErrNotExpandable)
}

func TestResetWhileResolvingKeepsSingleFetch(t *testing.T) {
	remote := infraRemote()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	release := remote.Hold()
	outcome, err := explorer.Expand(domain.GroupNodeID(1))
	require.NoError(t, err)
	assert.Equal(t, Dispatched, outcome)

	err = explorer.ResetNode(domain.GroupNodeID(1))
	assert.ErrorIs(t, err, domain.ErrInFlight)
	infra, ok := explorer.Lookup(domain.GroupNodeID(1))
	require.True(t, ok)
	assert.Equal(t, domain.Resolving, infra.State())

	outcome, err = explorer.Expand(domain.GroupNodeID(1))
	require.NoError(t, err)
	assert.Equal(t, InFlight, outcome)
	assert.Equal(t, 1, explorer.Pending())

	release()
	drain(t, explorer)
	assert.Equal(t, 1, remote.Calls(services.OpListGroupMembers))
	assert.Equal(t, domain.Resolved, infra.State())
	assert.Equal(t, []string{"Core"}, labels(infra.Children()))
}

func TestResultForDetachedNodeIsDropped(t *testing.T) {
	remote := infraRemote()
	store := services.NewFileStore(t.TempDir())
	explorer := newExplorer(t, remote, store)
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	release := remote.Hold()
	_, err := explorer.Expand(domain.GroupNodeID(1))
	require.NoError(t, err)
	require.NoError(t, explorer.ResetNode(domain.RootID))
	release()

	res := <-explorer.Results()
	assert.False(t, explorer.Apply(res))
	_, ok := explorer.Lookup(domain.GroupNodeID(1))
	assert.False(t, ok)
	assert.Equal(t, domain.Unresolved, explorer.Tree().Root().State())

	snapshot, err := store.Load(testSession)
	require.NoError(t, err)
	for _, entry := range snapshot.Entries {
		assert.NotEqual(t, domain.GroupNodeID(3), entry.ID)
	}
}

func TestRefreshDropsResultsOfPreviousTree(t *testing.T) {
	remote := infraRemote()
	explorer := newExplorer(t, remote, services.NewFileStore(t.TempDir()))
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)

	release := remote.Hold()
	_, err := explorer.Expand(domain.GroupNodeID(1))
	require.NoError(t, err)
	require.NoError(t, explorer.Refresh())
	release()
	drain(t, explorer)

	root := explorer.Tree().Root()
	assert.Equal(t, domain.Resolved, root.State())
	infra, ok := explorer.Lookup(domain.GroupNodeID(1))
	require.True(t, ok)
	assert.Equal(t, domain.Unresolved, infra.State())
	assert.Equal(t, 2, remote.Calls(services.OpListGroups))
}

func TestCorruptSnapshotStartsCold(t *testing.T) {
	store := services.NewFileStore(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path(testSession)), 0o755))
	require.NoError(t, os.WriteFile(store.Path(testSession), []byte("{not json"), 0o644))

	remote := infraRemote()
	explorer := newExplorer(t, remote, store)
	assert.False(t, explorer.Initialize(testSession))
	assert.Equal(t, domain.Unresolved, explorer.Tree().Root().State())
	_, err := os.Stat(store.Path(testSession))
	assert.True(t, os.IsNotExist(err))

	expandAndDrain(t, explorer, domain.RootID)
	assert.Len(t, explorer.Tree().Root().Children(), 2)
}

func TestDanglingParentSnapshotStartsCold(t *testing.T) {
	store := services.NewFileStore(t.TempDir())
	require.NoError(t, store.Save(testSession, services.Snapshot{
		RootID: domain.RootID,
		Entries: []services.SnapshotEntry{
			{ID: domain.RootID, Kind: domain.KindCollection, Label: "Groups", State: "resolved", Children: []string{"group:1"}},
			{ID: "group:1", Kind: domain.KindGroup, Label: "Infra", ParentID: domain.RootID, State: "unresolved"},
			{ID: "group:9", Kind: domain.KindSubgroup, Label: "Lost", ParentID: "group:404", State: "unresolved"},
		},
	}))

	explorer := newExplorer(t, infraRemote(), store)
	assert.False(t, explorer.Initialize(testSession))
	assert.Equal(t, 1, explorer.Tree().Len())
}

func TestExpandErrors(t *testing.T) {
	explorer := New(infraRemote(), nil, Options{})
	_, err := explorer.Expand(domain.RootID)
	assert.ErrorIs(t, err, ErrNotInitialized)

	explorer.Initialize(testSession)
	defer explorer.Teardown()
	_, err = explorer.Expand("group:77")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestWatchSeesResolution(t *testing.T) {
	explorer := newExplorer(t, infraRemote(), nil)
	explorer.Initialize(testSession)

	var states []domain.ResolutionState
	cancel, err := explorer.Watch(domain.RootID, func(node *domain.Node) {
		states = append(states, node.State())
	})
	require.NoError(t, err)
	expandAndDrain(t, explorer, domain.RootID)
	cancel()

	assert.Equal(t, []domain.ResolutionState{domain.Resolving, domain.Resolved}, states)
}

func TestTeardownClosesResults(t *testing.T) {
	remote := infraRemote()
	release := remote.Hold()
	defer release()
	explorer := New(remote, nil, Options{})
	explorer.Initialize(testSession)
	_, err := explorer.Expand(domain.RootID)
	require.NoError(t, err)
	results := explorer.Results()

	explorer.Teardown()
	assert.False(t, explorer.Initialized())
	for range results {
	}
	_, err = explorer.Expand(domain.RootID)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLogoutRemovesSnapshot(t *testing.T) {
	store := services.NewFileStore(t.TempDir())
	explorer := newExplorer(t, infraRemote(), store)
	explorer.Initialize(testSession)
	expandAndDrain(t, explorer, domain.RootID)
	_, err := store.Load(testSession)
	require.NoError(t, err)

	require.NoError(t, explorer.Logout())
	_, err = store.Load(testSession)
	assert.ErrorIs(t, err, services.ErrSnapshotNotFound)
}
