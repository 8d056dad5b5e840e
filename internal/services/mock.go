package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"labtree/internal/domain"
)

const (
	OpCurrentUser      = "current_user"
	OpListGroups       = "list_groups"
	OpListGroupMembers = "list_subgroups_and_projects"
	OpListTree         = "list_tree"
	OpFetchFile        = "fetch_file"
	OpUpload           = "upload"
	OpCreateGroup      = "create_group"
	OpCreateProject    = "create_project"
)

type mockGroup struct {
	id       int64
	name     string
	parentID int64
}

type mockProject struct {
	id      int64
	name    string
	groupID int64
	ref     string
	files   map[string][]byte
	dirs    map[string]bool
}

// MockRemote is an in-memory RemoteClient used by tests and demo mode.
type MockRemote struct {
	mu       sync.Mutex
	user     User
	groups   map[int64]*mockGroup
	projects map[int64]*mockProject
	calls    map[string]int
	failures map[string][]error
	sticky   map[string]error
	delay    time.Duration
	hold     chan struct{}
}

func NewMockRemote() *MockRemote {
	return &MockRemote{
		user:     User{ID: 1, Username: "demo", Name: "Demo User"},
		groups:   make(map[int64]*mockGroup),
		projects: make(map[int64]*mockProject),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		sticky:   make(map[string]error),
	}
}

func (remote *MockRemote) SetUser(user User) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.user = user
}

// AddGroup adds a group; parentID 0 makes it top level.
func (remote *MockRemote) AddGroup(id int64, name string, parentID int64) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.groups[id] = &mockGroup{id: id, name: name, parentID: parentID}
}

func (remote *MockRemote) AddProject(id int64, name string, groupID int64, ref string) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.projects[id] = &mockProject{
		id:      id,
		name:    name,
		groupID: groupID,
		ref:     ref,
		files:   make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
}

// AddFile stores content at filePath, creating intermediate directories.
func (remote *MockRemote) AddFile(projectID int64, filePath string, content []byte) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if project, ok := remote.projects[projectID]; ok {
		project.put(filePath, content)
	}
}

func (remote *MockRemote) AddDir(projectID int64, dirPath string) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if project, ok := remote.projects[projectID]; ok {
		project.mkdirAll(strings.Trim(dirPath, "/"))
	}
}

// FailNext makes the next call of op return err; repeated calls queue errors.
func (remote *MockRemote) FailNext(op string, err error) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.failures[op] = append(remote.failures[op], err)
}

// FailAlways makes every call of op return err until cleared with a nil err.
func (remote *MockRemote) FailAlways(op string, err error) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if err == nil {
		delete(remote.sticky, op)
		return
	}
	remote.sticky[op] = err
}

func (remote *MockRemote) SetDelay(delay time.Duration) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.delay = delay
}

// Hold blocks every call until the returned release func runs.
func (remote *MockRemote) Hold() (release func()) {
	gate := make(chan struct{})
	remote.mu.Lock()
	remote.hold = gate
	remote.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			remote.mu.Lock()
			if remote.hold == gate {
				remote.hold = nil
			}
			remote.mu.Unlock()
			close(gate)
		})
	}
}

func (remote *MockRemote) Calls(op string) int {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	return remote.calls[op]
}

func (remote *MockRemote) TotalCalls() int {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	total := 0
	for _, count := range remote.calls {
		total += count
	}
	return total
}

// FileContent returns what an upload stored, for assertions.
func (remote *MockRemote) FileContent(projectID int64, filePath string) ([]byte, bool) {
	remote.mu.Lock()
	defer remote.mu.Unlock()
	project, ok := remote.projects[projectID]
	if !ok {
		return nil, false
	}
	content, ok := project.files[strings.Trim(filePath, "/")]
	return content, ok
}

func (remote *MockRemote) begin(ctx context.Context, op string) error {
	remote.mu.Lock()
	remote.calls[op]++
	delay := remote.delay
	hold := remote.hold
	var failure error
	if queued := remote.failures[op]; len(queued) > 0 {
		failure = queued[0]
		remote.failures[op] = queued[1:]
	} else if err, ok := remote.sticky[op]; ok {
		failure = err
	}
	remote.mu.Unlock()

	if hold != nil {
		select {
		case <-ctx.Done():
			return &RemoteError{Op: op, Kind: ErrNetwork, Err: ctx.Err()}
		case <-hold:
		}
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return &RemoteError{Op: op, Kind: ErrNetwork, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return failure
}

func (remote *MockRemote) CurrentUser(ctx context.Context) (User, error) {
	if err := remote.begin(ctx, OpCurrentUser); err != nil {
		return User{}, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	return remote.user, nil
}

func (remote *MockRemote) ListGroups(ctx context.Context) ([]Entry, error) {
	if err := remote.begin(ctx, OpListGroups); err != nil {
		return nil, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	var entries []Entry
	for _, group := range remote.groups {
		if group.parentID == 0 {
			entries = append(entries, remote.groupEntry(group, domain.KindGroup))
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (remote *MockRemote) ListSubgroupsAndProjects(ctx context.Context, groupID int64) ([]Entry, error) {
	if err := remote.begin(ctx, OpListGroupMembers); err != nil {
		return nil, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if _, ok := remote.groups[groupID]; !ok {
		return nil, &RemoteError{Op: OpListGroupMembers, Status: 404, Kind: ErrNotFound}
	}
	var subgroups, projects []Entry
	for _, group := range remote.groups {
		if group.parentID == groupID {
			subgroups = append(subgroups, remote.groupEntry(group, domain.KindSubgroup))
		}
	}
	for _, project := range remote.projects {
		if project.groupID != groupID {
			continue
		}
		projects = append(projects, Entry{
			RemoteID: project.id,
			Kind:     domain.KindProject,
			Label:    project.name,
			Meta: domain.Metadata{
				FullPath:  remote.fullPath(groupID) + "/" + project.name,
				ProjectID: project.id,
				Ref:       project.ref,
			},
		})
	}
	sortEntries(subgroups)
	sortEntries(projects)
	return append(subgroups, projects...), nil
}

func (remote *MockRemote) ListRepositoryTree(ctx context.Context, projectID int64, ref, dirPath string) ([]Entry, error) {
	if err := remote.begin(ctx, OpListTree); err != nil {
		return nil, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	project, ok := remote.projects[projectID]
	dirPath = strings.Trim(dirPath, "/")
	if !ok || (dirPath != "" && !project.dirs[dirPath]) {
		return nil, &RemoteError{Op: OpListTree, Status: 404, Kind: ErrNotFound}
	}
	var dirs, files []Entry
	for dir := range project.dirs {
		if parentDir(dir) == dirPath {
			dirs = append(dirs, treeEntry(projectID, ref, dir, domain.KindDirectory, 0))
		}
	}
	for file, content := range project.files {
		if parentDir(file) == dirPath {
			files = append(files, treeEntry(projectID, ref, file, domain.KindFile, int64(len(content))))
		}
	}
	sortEntries(dirs)
	sortEntries(files)
	return append(dirs, files...), nil
}

func (remote *MockRemote) FetchFileContent(ctx context.Context, projectID int64, ref, filePath string) ([]byte, error) {
	if err := remote.begin(ctx, OpFetchFile); err != nil {
		return nil, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	project, ok := remote.projects[projectID]
	if !ok {
		return nil, &RemoteError{Op: OpFetchFile, Status: 404, Kind: ErrNotFound}
	}
	content, ok := project.files[strings.Trim(filePath, "/")]
	if !ok {
		return nil, &RemoteError{Op: OpFetchFile, Status: 404, Kind: ErrNotFound}
	}
	return append([]byte(nil), content...), nil
}

func (remote *MockRemote) UploadFile(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if err := remote.begin(ctx, OpUpload); err != nil {
		return UploadResult{}, err
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	project, ok := remote.projects[req.ProjectID]
	if !ok {
		return UploadResult{}, &RemoteError{Op: OpUpload, Status: 404, Kind: ErrNotFound}
	}
	target := strings.Trim(req.Path, "/")
	action := "create"
	if _, exists := project.files[target]; exists {
		action = "update"
	}
	project.put(target, append([]byte(nil), req.Content...))
	return UploadResult{
		Action:   action,
		Path:     target,
		CommitID: fmt.Sprintf("mock-%d-%d", req.ProjectID, len(project.files)),
	}, nil
}

func (remote *MockRemote) CreateGroup(ctx context.Context, name, path string, parentID int64) (Entry, error) {
	if err := remote.begin(ctx, OpCreateGroup); err != nil {
		return Entry{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" || path == "" {
		return Entry{}, fmt.Errorf("create group: %w", ErrEmptyName)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if _, ok := remote.groups[parentID]; parentID != 0 && !ok {
		return Entry{}, &RemoteError{Op: OpCreateGroup, Status: 404, Kind: ErrNotFound}
	}
	for _, group := range remote.groups {
		if group.parentID == parentID && Slugify(group.name) == path {
			return Entry{}, &RemoteError{Op: OpCreateGroup, Status: 400, Kind: ErrRejected,
				Err: errors.New("path has already been taken")}
		}
	}
	group := &mockGroup{id: remote.nextID(), name: name, parentID: parentID}
	remote.groups[group.id] = group
	kind := domain.KindGroup
	if parentID != 0 {
		kind = domain.KindSubgroup
	}
	return remote.groupEntry(group, kind), nil
}

func (remote *MockRemote) CreateProject(ctx context.Context, name string, namespaceID int64) (Entry, error) {
	if err := remote.begin(ctx, OpCreateProject); err != nil {
		return Entry{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, fmt.Errorf("create project: %w", ErrEmptyName)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if _, ok := remote.groups[namespaceID]; !ok {
		return Entry{}, &RemoteError{Op: OpCreateProject, Status: 404, Kind: ErrNotFound}
	}
	for _, project := range remote.projects {
		if project.groupID == namespaceID && strings.EqualFold(project.name, name) {
			return Entry{}, &RemoteError{Op: OpCreateProject, Status: 400, Kind: ErrRejected,
				Err: errors.New("name has already been taken")}
		}
	}
	project := &mockProject{
		id:      remote.nextID(),
		name:    name,
		groupID: namespaceID,
		files:   make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
	remote.projects[project.id] = project
	return Entry{
		RemoteID: project.id,
		Kind:     domain.KindProject,
		Label:    project.name,
		Meta: domain.Metadata{
			FullPath:  remote.fullPath(namespaceID) + "/" + project.name,
			ProjectID: project.id,
		},
	}, nil
}

// nextID hands out ids above every group and project; callers hold mu.
func (remote *MockRemote) nextID() int64 {
	var highest int64
	for id := range remote.groups {
		highest = max(highest, id)
	}
	for id := range remote.projects {
		highest = max(highest, id)
	}
	return highest + 1
}

func (remote *MockRemote) groupEntry(group *mockGroup, kind domain.Kind) Entry {
	return Entry{
		RemoteID: group.id,
		Kind:     kind,
		Label:    group.name,
		Meta:     domain.Metadata{FullPath: remote.fullPath(group.id)},
	}
}

func (remote *MockRemote) fullPath(groupID int64) string {
	var parts []string
	for group, ok := remote.groups[groupID]; ok; group, ok = remote.groups[group.parentID] {
		parts = append([]string{strings.ToLower(group.name)}, parts...)
	}
	return strings.Join(parts, "/")
}

func (project *mockProject) put(filePath string, content []byte) {
	filePath = strings.Trim(filePath, "/")
	project.mkdirAll(parentDir(filePath))
	project.files[filePath] = content
}

func (project *mockProject) mkdirAll(dir string) {
	for dir != "" {
		project.dirs[dir] = true
		dir = parentDir(dir)
	}
}

func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func treeEntry(projectID int64, ref, p string, kind domain.Kind, size int64) Entry {
	return Entry{
		Kind:  kind,
		Label: path.Base(p),
		Meta: domain.Metadata{
			ProjectID: projectID,
			Path:      p,
			Ref:       ref,
			Size:      size,
		},
	}
}

// NewDemoRemote returns a MockRemote seeded with a small hierarchy for offline use.
func NewDemoRemote() *MockRemote {
	remote := NewMockRemote()
	remote.SetDelay(250 * time.Millisecond)
	remote.AddGroup(1, "Infra", 0)
	remote.AddGroup(2, "Web", 0)
	remote.AddGroup(3, "Core", 1)
	remote.AddGroup(4, "Observability", 1)

	remote.AddProject(10, "terraform-modules", 1, "main")
	remote.AddFile(10, "README.md", []byte("# terraform-modules\n\nShared modules for all environments.\n"))
	remote.AddFile(10, "modules/network/main.tf", []byte("resource \"aws_vpc\" \"this\" {}\n"))
	remote.AddFile(10, "modules/network/variables.tf", []byte("variable \"cidr\" {}\n"))

	remote.AddProject(11, "ProjectAlpha", 3, "main")
	remote.AddFile(11, "cmd/alpha/main.go", []byte("package main\n\nfunc main() {}\n"))
	remote.AddFile(11, "go.mod", []byte("module alpha\n"))

	remote.AddProject(12, "ProjectBeta", 3, "develop")
	remote.AddFile(12, "docs/overview.md", []byte("# Beta\n"))

	remote.AddProject(13, "dashboards", 4, "main")
	remote.AddDir(13, "grafana")

	remote.AddProject(20, "storefront", 2, "main")
	remote.AddFile(20, "src/index.ts", []byte("export const ready = true;\n"))
	remote.AddFile(20, "package.json", []byte("{\"name\":\"storefront\"}\n"))
	return remote
}

var _ RemoteClient = (*MockRemote)(nil)

