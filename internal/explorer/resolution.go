package explorer

import (
	"context"
	"fmt"
	"time"

	"labtree/internal/domain"
	"labtree/internal/services"
)

// Resolution is a worker's answer for one dispatched node.
type Resolution struct {
	NodeID  string
	Entries []services.Entry
	Err     error
	Elapsed time.Duration

	node       *domain.Node
	generation uint64
}

// fetchRequest is captured on the mutator so workers never touch the tree.
type fetchRequest struct {
	kind      domain.Kind
	groupID   int64
	projectID int64
	ref       string
	path      string
}

func (explorer *Explorer) fetchRequestFor(node *domain.Node) fetchRequest {
	req := fetchRequest{
		kind:      node.Kind,
		groupID:   node.RemoteID,
		projectID: node.Meta.ProjectID,
		ref:       node.Meta.Ref,
		path:      node.Meta.Path,
	}
	if req.kind == domain.KindProject && req.projectID == 0 {
		req.projectID = node.RemoteID
	}
	if req.ref == "" {
		req.ref = explorer.defaultRef
	}
	return req
}

func (req fetchRequest) fetch(ctx context.Context, remote services.RemoteClient) ([]services.Entry, error) {
	switch req.kind {
	case domain.KindCollection:
		return remote.ListGroups(ctx)
	case domain.KindGroup, domain.KindSubgroup:
		return remote.ListSubgroupsAndProjects(ctx, req.groupID)
	case domain.KindProject:
		return remote.ListRepositoryTree(ctx, req.projectID, req.ref, "")
	case domain.KindDirectory:
		return remote.ListRepositoryTree(ctx, req.projectID, req.ref, req.path)
	default:
		return nil, fmt.Errorf("%s: %w", req.kind, ErrNotExpandable)
	}
}
