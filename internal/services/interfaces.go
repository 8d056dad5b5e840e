package services

import "context"

type RemoteClient interface {
	CurrentUser(ctx context.Context) (User, error)
	ListGroups(ctx context.Context) ([]Entry, error)
	ListSubgroupsAndProjects(ctx context.Context, groupID int64) ([]Entry, error)
	ListRepositoryTree(ctx context.Context, projectID int64, ref, path string) ([]Entry, error)
	FetchFileContent(ctx context.Context, projectID int64, ref, path string) ([]byte, error)
	UploadFile(ctx context.Context, req UploadRequest) (UploadResult, error)
	CreateGroup(ctx context.Context, name, path string, parentID int64) (Entry, error)
	CreateProject(ctx context.Context, name string, namespaceID int64) (Entry, error)
}

type SnapshotStore interface {
	Load(sessionKey string) (Snapshot, error)
	Save(sessionKey string, snapshot Snapshot) error
	Invalidate(sessionKey string) error
}

type Actions interface {
	Execute(ctx context.Context, req ActionRequest) (ActionResult, error)
}

type TokenProvider interface {
	Token() (string, error)
}

type ActionProgressProvider interface {
	ActionProgress() <-chan ActionProgress
}
