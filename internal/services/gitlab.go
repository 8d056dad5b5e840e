package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"labtree/internal/domain"
	"labtree/internal/metrics"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 500
	maxErrorBody    = 512
)

type GitLabConfig struct {
	BaseURL    string
	Tokens     TokenProvider
	Timeout    time.Duration
	PageSize   int
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	HTTPClient *http.Client
}

// GitLabClient talks to the GitLab REST API v4.
type GitLabClient struct {
	apiURL     string
	tokens     TokenProvider
	timeout    time.Duration
	pageSize   int
	maxPages   int
	logger     *zap.Logger
	metrics    *metrics.Recorder
	httpClient *http.Client
}

func NewGitLabClient(cfg GitLabConfig) *GitLabClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &GitLabClient{
		apiURL:     APIURL(cfg.BaseURL),
		tokens:     cfg.Tokens,
		timeout:    cfg.Timeout,
		pageSize:   cfg.PageSize,
		maxPages:   defaultMaxPages,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		httpClient: cfg.HTTPClient,
	}
}

// APIURL normalizes a host such as https://gitlab.example.com into its /api/v4 root.
func APIURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://gitlab.com"
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if strings.HasSuffix(base, "/api/v4") {
		return base
	}
	return base + "/api/v4"
}

type apiGroup struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
	ParentID *int64 `json:"parent_id"`
	WebURL   string `json:"web_url"`
}

type apiProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
}

type apiTreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

type apiCommitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type apiCommitRequest struct {
	Branch        string            `json:"branch"`
	CommitMessage string            `json:"commit_message"`
	Actions       []apiCommitAction `json:"actions"`
}

type apiCommit struct {
	ID string `json:"id"`
}

type apiCreateGroup struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	ParentID int64  `json:"parent_id,omitempty"`
}

type apiCreateProject struct {
	Name        string `json:"name"`
	NamespaceID int64  `json:"namespace_id,omitempty"`
}

func (client *GitLabClient) CurrentUser(ctx context.Context) (User, error) {
	body, _, err := client.send(ctx, "current_user", http.MethodGet, "/user", nil, nil)
	if err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return User{}, decodeError("current_user", err)
	}
	return user, nil
}

func (client *GitLabClient) ListGroups(ctx context.Context) ([]Entry, error) {
	query := url.Values{}
	query.Set("top_level_only", "true")
	query.Set("order_by", "name")
	groups, err := fetchAll[apiGroup](ctx, client, "list_groups", "/groups", query)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(groups))
	for _, group := range groups {
		if group.ParentID != nil {
			continue
		}
		entries = append(entries, groupEntry(group, domain.KindGroup))
	}
	sortEntries(entries)
	return entries, nil
}

func (client *GitLabClient) ListSubgroupsAndProjects(ctx context.Context, groupID int64) ([]Entry, error) {
	var subgroups []apiGroup
	var projects []apiProject
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		subgroups, err = fetchAll[apiGroup](groupCtx, client, "list_subgroups",
			fmt.Sprintf("/groups/%d/subgroups", groupID), url.Values{})
		return err
	})
	group.Go(func() error {
		var err error
		projects, err = fetchAll[apiProject](groupCtx, client, "list_projects",
			fmt.Sprintf("/groups/%d/projects", groupID), url.Values{"archived": {"false"}, "with_shared": {"false"}})
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	groupEntries := make([]Entry, 0, len(subgroups))
	for _, subgroup := range subgroups {
		groupEntries = append(groupEntries, groupEntry(subgroup, domain.KindSubgroup))
	}
	sortEntries(groupEntries)
	projectEntries := make([]Entry, 0, len(projects))
	for _, project := range projects {
		projectEntries = append(projectEntries, projectEntry(project))
	}
	sortEntries(projectEntries)
	return append(groupEntries, projectEntries...), nil
}

func (client *GitLabClient) ListRepositoryTree(ctx context.Context, projectID int64, ref, path string) ([]Entry, error) {
	query := url.Values{}
	if ref != "" {
		query.Set("ref", ref)
	}
	if path != "" {
		query.Set("path", path)
	}
	items, err := fetchAll[apiTreeEntry](ctx, client, "list_tree",
		fmt.Sprintf("/projects/%d/repository/tree", projectID), query)
	if err != nil {
		return nil, err
	}
	var dirs, files []Entry
	for _, item := range items {
		entry := Entry{
			Label: item.Name,
			Meta: domain.Metadata{
				ProjectID: projectID,
				Path:      item.Path,
				Ref:       ref,
				SHA:       item.ID,
			},
		}
		switch item.Type {
		case "tree":
			entry.Kind = domain.KindDirectory
			dirs = append(dirs, entry)
		case "blob":
			entry.Kind = domain.KindFile
			files = append(files, entry)
		default:
			// submodule commits have no browsable content
		}
	}
	sortEntries(dirs)
	sortEntries(files)
	return append(dirs, files...), nil
}

func (client *GitLabClient) FetchFileContent(ctx context.Context, projectID int64, ref, path string) ([]byte, error) {
	query := url.Values{}
	if ref != "" {
		query.Set("ref", ref)
	}
	body, _, err := client.send(ctx, "fetch_file", http.MethodGet, filePath(projectID, path)+"/raw", query, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (client *GitLabClient) UploadFile(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if req.Path == "" {
		return UploadResult{}, fmt.Errorf("upload: empty target path")
	}
	action := "create"
	query := url.Values{"ref": {req.Branch}}
	_, _, err := client.send(ctx, "file_exists", http.MethodHead, filePath(req.ProjectID, req.Path), query, nil)
	switch {
	case err == nil:
		action = "update"
	case Classify(err) != KindNotFound:
		return UploadResult{}, err
	}

	message := req.CommitMessage
	if message == "" {
		message = fmt.Sprintf("%s %s", action, req.Path)
	}
	payload, err := json.Marshal(apiCommitRequest{
		Branch:        req.Branch,
		CommitMessage: message,
		Actions: []apiCommitAction{{
			Action:   action,
			FilePath: req.Path,
			Content:  base64.StdEncoding.EncodeToString(req.Content),
			Encoding: "base64",
		}},
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload: encode commit: %w", err)
	}
	body, _, err := client.send(ctx, "commit", http.MethodPost,
		fmt.Sprintf("/projects/%d/repository/commits", req.ProjectID), nil, payload)
	if err != nil {
		return UploadResult{}, err
	}
	var commit apiCommit
	if err := json.Unmarshal(body, &commit); err != nil {
		return UploadResult{}, decodeError("commit", err)
	}
	return UploadResult{Action: action, Path: req.Path, CommitID: commit.ID}, nil
}

// CreateGroup creates a group, or a subgroup when parentID is set.
func (client *GitLabClient) CreateGroup(ctx context.Context, name, path string, parentID int64) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" || path == "" {
		return Entry{}, fmt.Errorf("create group: %w", ErrEmptyName)
	}
	payload, err := json.Marshal(apiCreateGroup{Name: name, Path: path, ParentID: parentID})
	if err != nil {
		return Entry{}, fmt.Errorf("create group: encode: %w", err)
	}
	body, _, err := client.send(ctx, "create_group", http.MethodPost, "/groups", nil, payload)
	if err != nil {
		return Entry{}, err
	}
	var group apiGroup
	if err := json.Unmarshal(body, &group); err != nil {
		return Entry{}, decodeError("create_group", err)
	}
	kind := domain.KindGroup
	if parentID != 0 {
		kind = domain.KindSubgroup
	}
	return groupEntry(group, kind), nil
}

// CreateProject creates a project inside the namespace of a group or subgroup.
func (client *GitLabClient) CreateProject(ctx context.Context, name string, namespaceID int64) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, fmt.Errorf("create project: %w", ErrEmptyName)
	}
	payload, err := json.Marshal(apiCreateProject{Name: name, NamespaceID: namespaceID})
	if err != nil {
		return Entry{}, fmt.Errorf("create project: encode: %w", err)
	}
	body, _, err := client.send(ctx, "create_project", http.MethodPost, "/projects", nil, payload)
	if err != nil {
		return Entry{}, err
	}
	var project apiProject
	if err := json.Unmarshal(body, &project); err != nil {
		return Entry{}, decodeError("create_project", err)
	}
	return projectEntry(project), nil
}

func fetchAll[T any](ctx context.Context, client *GitLabClient, op, path string, query url.Values) ([]T, error) {
	var all []T
	page := 1
	for pages := 0; pages < client.maxPages; pages++ {
		pageQuery := url.Values{}
		for key, values := range query {
			pageQuery[key] = values
		}
		pageQuery.Set("per_page", strconv.Itoa(client.pageSize))
		pageQuery.Set("page", strconv.Itoa(page))

		body, header, err := client.send(ctx, op, http.MethodGet, path, pageQuery, nil)
		if err != nil {
			return nil, err
		}
		var batch []T
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, decodeError(op, err)
		}
		all = append(all, batch...)

		if next, ok := header["X-Next-Page"]; ok {
			nextPage, err := strconv.Atoi(strings.TrimSpace(strings.Join(next, "")))
			if err != nil || nextPage <= page {
				return all, nil
			}
			page = nextPage
			continue
		}
		if len(batch) < client.pageSize {
			return all, nil
		}
		page++
	}
	return nil, fmt.Errorf("%s: %w after %d pages", op, ErrPageLimit, client.maxPages)
}

func (client *GitLabClient) send(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, http.Header, error) {
	start := time.Now()
	body, header, status, err := client.do(ctx, op, method, path, query, payload)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = Classify(err).String()
	}
	client.metrics.RecordRemoteCall(op, outcome, elapsed)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		client.logger.Debug("remote call failed", append(fields, zap.Error(err))...)
	} else {
		client.logger.Debug("remote call", fields...)
	}
	return body, header, err
}

func (client *GitLabClient) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, http.Header, int, error) {
	if client.tokens == nil {
		return nil, nil, 0, &RemoteError{Op: op, Kind: ErrAuth, Err: ErrNoToken}
	}
	token, err := client.tokens.Token()
	if err != nil {
		return nil, nil, 0, &RemoteError{Op: op, Kind: ErrAuth, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	target := client.apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("PRIVATE-TOKEN", token)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "labtree")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, nil, 0, &RemoteError{Op: op, Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, resp.StatusCode, &RemoteError{Op: op, Status: resp.StatusCode, Kind: ErrNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := statusError(op, resp.StatusCode, errorMessage(body))
		if re, ok := remoteErr.(*RemoteError); ok && resp.StatusCode == http.StatusTooManyRequests {
			re.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, resp.Header, resp.StatusCode, remoteErr
	}
	return body, resp.Header, resp.StatusCode, nil
}

func groupEntry(group apiGroup, kind domain.Kind) Entry {
	return Entry{
		RemoteID: group.ID,
		Kind:     kind,
		Label:    group.Name,
		Meta: domain.Metadata{
			FullPath: group.FullPath,
			WebURL:   group.WebURL,
		},
	}
}

func projectEntry(project apiProject) Entry {
	return Entry{
		RemoteID: project.ID,
		Kind:     domain.KindProject,
		Label:    project.Name,
		Meta: domain.Metadata{
			FullPath:  project.PathWithNamespace,
			ProjectID: project.ID,
			Ref:       project.DefaultBranch,
			WebURL:    project.WebURL,
		},
	}
}

func filePath(projectID int64, path string) string {
	return fmt.Sprintf("/projects/%d/repository/files/%s", projectID, url.PathEscape(strings.TrimPrefix(path, "/")))
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Label) < strings.ToLower(entries[j].Label)
	})
}

// errorMessage extracts GitLab's {"message": ...} or {"error": ...} body.
func errorMessage(body []byte) string {
	var payload struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != nil {
			return fmt.Sprint(payload.Message)
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func decodeError(op string, err error) error {
	return fmt.Errorf("%s: decode response: %w", op, err)
}
