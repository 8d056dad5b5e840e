package ui

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"labtree/internal/config"
	"labtree/internal/domain"
	"labtree/internal/explorer"
	"labtree/internal/services"
	"labtree/internal/state"
)

const (
	loginTimeout      = 30 * time.Second
	progressPollDelay = 25 * time.Millisecond
	progressPolls     = 40
)

type inputMode string

const (
	inputNone     inputMode = ""
	inputSearch   inputMode = "search"
	inputExt      inputMode = "ext"
	inputDownload inputMode = "download"
	inputUpload   inputMode = "upload"
	inputCommit   inputMode = "commit"
	inputGroup    inputMode = "group"
	inputProject  inputMode = "project"
)

// Deps are the collaborators a Model drives. Explorer and Remote are required.
type Deps struct {
	Explorer *explorer.Explorer
	Actions  services.Actions
	Remote   services.RemoteClient
	Logger   *zap.Logger
	// Saved is the configuration read from disk; ConfigSnapshot updates it.
	Saved config.Config
	// Refresh discards the cached tree after the first successful login.
	Refresh bool
}

type Model struct {
	state          *state.State
	explorer       *explorer.Explorer
	actions        services.Actions
	actionProgress services.ActionProgressProvider
	remote         services.RemoteClient
	logger         *zap.Logger
	saved          config.Config
	keys           KeyMap
	notices        *noticeBoard
	input          textinput.Model
	inputMode      inputMode
	viewer         viewport.Model
	viewing        bool
	viewTitle      string
	showHelp       bool
	status         string
	user           services.User
	loggingIn      bool
	refreshOnLogin bool
	actionRunning  bool
	actionStage    string
	pendingUpload  services.ActionRequest
	uploadDir      string
	createParent   *domain.Node
	width          int
	height         int
	viewTop        int
}

type ConfigProvider interface {
	ConfigSnapshot() config.Config
}

// noticeBoard collects messages posted by node observers while a result is applied.
type noticeBoard struct {
	messages []string
}

func (board *noticeBoard) post(message string) {
	board.messages = append(board.messages, message)
}

func (board *noticeBoard) take() string {
	if len(board.messages) == 0 {
		return ""
	}
	last := board.messages[len(board.messages)-1]
	board.messages = nil
	return last
}

func NewModel(appState *state.State, deps Deps) Model {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	input := textinput.New()
	input.CharLimit = 512
	return Model{
		state:          appState,
		explorer:       deps.Explorer,
		actions:        deps.Actions,
		actionProgress: actionProgressProvider(deps.Actions),
		remote:         deps.Remote,
		logger:         logger,
		saved:          deps.Saved,
		keys:           DefaultKeyMap(),
		notices:        &noticeBoard{},
		input:          input,
		viewer:         viewport.New(80, 20),
		status:         fmt.Sprintf("Signing in to %s...", appState.Host),
		loggingIn:      true,
		refreshOnLogin: deps.Refresh,
		width:          100,
		height:         30,
	}
}

func (model Model) WithStatus(message string) Model {
	if message != "" {
		model.status = message
	}
	return model
}

// ConfigSnapshot is the saved configuration plus what this session changed.
func (model Model) ConfigSnapshot() config.Config {
	snapshot := model.saved
	snapshot.DownloadDir = model.state.LastDownloadDir
	snapshot.LastSearch = model.state.SearchQuery
	snapshot.Refresh = false
	return snapshot
}

func (model Model) Init() tea.Cmd {
	return model.loginCmd()
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return model.handleKey(typed)
	case tea.WindowSizeMsg:
		model.width = typed.Width
		model.height = typed.Height
		model.viewer.Width = typed.Width
		model.viewer.Height = maxInt(typed.Height-4, 3)
		model.ensureCursorVisible()
		return model, nil
	case loginMsg:
		return model.finishLogin(typed)
	case resolutionMsg:
		if !typed.ok {
			return model, nil
		}
		if model.explorer.Apply(typed.res) {
			model.state.SetTree(model.explorer.Tree())
			model.ensureCursorVisible()
			if notice := model.notices.take(); notice != "" {
				model.status = notice
			}
		}
		return model, model.waitForResolution()
	case actionResultMsg:
		return model.finishAction(typed)
	case createdMsg:
		return model.finishCreate(typed)
	case actionProgressMsg:
		if typed.progress.Completed || !model.actionRunning {
			return model, nil
		}
		model.actionStage = typed.progress.Stage
		model.status = fmt.Sprintf("%s %s: %s", strings.ToUpper(string(typed.progress.Type)), typed.progress.Stage, typed.progress.Path)
		return model, model.actionProgressCmd()
	default:
		if model.inputMode != inputNone {
			var cmd tea.Cmd
			model.input, cmd = model.input.Update(msg)
			return model, cmd
		}
		return model, nil
	}
}

func (model Model) loginCmd() tea.Cmd {
	remote := model.remote
	host := model.state.Host
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		defer cancel()
		user, err := remote.CurrentUser(ctx)
		if err != nil {
			return loginMsg{err: err}
		}
		return loginMsg{user: user, sessionKey: services.SessionKey(host, user)}
	}
}

func (model Model) finishLogin(msg loginMsg) (tea.Model, tea.Cmd) {
	model.loggingIn = false
	if msg.err != nil {
		model.logger.Warn("login failed", zap.String("host", model.state.Host), zap.Error(msg.err))
		model.status = fmt.Sprintf("Login error: %s - press i to retry", describeError(msg.err))
		return model, nil
	}
	model.user = msg.user
	fromCache := model.explorer.Initialize(msg.sessionKey)
	model.logger.Info("logged in",
		zap.String("user", msg.user.Username),
		zap.String("session", msg.sessionKey),
		zap.Bool("from_cache", fromCache),
	)
	if model.refreshOnLogin {
		model.refreshOnLogin = false
		fromCache = false
		if err := model.explorer.Refresh(); err != nil {
			model.logger.Warn("discarding cached tree failed", zap.Error(err))
		}
	} else if _, err := model.explorer.Expand(domain.RootID); err != nil {
		model.status = fmt.Sprintf("Expand error: %s", describeError(err))
	}
	model.state.SetTree(model.explorer.Tree())
	model.state.Cursor = 0
	model.ensureCursorVisible()
	if fromCache {
		model.status = fmt.Sprintf("Signed in as %s - tree restored from cache", displayName(msg.user))
	} else {
		model.status = fmt.Sprintf("Signed in as %s - loading groups...", displayName(msg.user))
	}
	return model, model.waitForResolution()
}

func (model Model) waitForResolution() tea.Cmd {
	results := model.explorer.Results()
	if results == nil {
		return nil
	}
	return func() tea.Msg {
		res, ok := <-results
		return resolutionMsg{res: res, ok: ok}
	}
}

func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.inputMode != inputNone {
		return model.handleInput(msg)
	}
	if model.viewing {
		return model.handleViewer(msg)
	}
	switch {
	case key.Matches(msg, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(msg, model.keys.Help):
		model.showHelp = !model.showHelp
		return model, nil
	case key.Matches(msg, model.keys.Up):
		model.state.MoveCursor(-1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Down):
		model.state.MoveCursor(1)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.PageUp):
		model.state.MoveCursor(-maxInt(model.listHeight(), 1))
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.PageDown):
		model.state.MoveCursor(maxInt(model.listHeight(), 1))
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Expand):
		return model.expandCurrent()
	case key.Matches(msg, model.keys.Collapse):
		model.state.Collapse()
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Search):
		value := model.state.SearchQuery
		if value == "" {
			value = model.saved.LastSearch
		}
		return model.beginInput(inputSearch, value)
	case key.Matches(msg, model.keys.ExtFilter):
		return model.beginInput(inputExt, model.state.FilterExt)
	case key.Matches(msg, model.keys.ClearFilter):
		model.state.ClearFilters()
		model.status = "Filters cleared"
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Reload):
		return model.reloadCurrent()
	case key.Matches(msg, model.keys.Refresh):
		return model.refreshAll()
	case key.Matches(msg, model.keys.View):
		return model.beginView()
	case key.Matches(msg, model.keys.Download):
		node := model.state.CurrentNode()
		if node == nil || node.Kind != domain.KindFile {
			model.status = "Select a file to download"
			return model, nil
		}
		return model.beginInput(inputDownload, model.state.LastDownloadDir)
	case key.Matches(msg, model.keys.Upload):
		return model.beginUpload()
	case key.Matches(msg, model.keys.Yank):
		node := model.state.CurrentNode()
		if node == nil || node.ID == domain.RootID {
			return model, nil
		}
		text := yankText(node)
		if err := clipboard.WriteAll(text); err != nil {
			model.status = fmt.Sprintf("Copy error: %v", err)
			return model, nil
		}
		model.status = fmt.Sprintf("Copied %s", text)
		return model, nil
	case key.Matches(msg, model.keys.NewGroup):
		return model.beginCreate(inputGroup)
	case key.Matches(msg, model.keys.NewProject):
		return model.beginCreate(inputProject)
	case key.Matches(msg, model.keys.Login):
		if model.explorer.Initialized() || model.loggingIn {
			return model, nil
		}
		model.loggingIn = true
		model.status = fmt.Sprintf("Signing in to %s...", model.state.Host)
		return model, model.loginCmd()
	case key.Matches(msg, model.keys.Logout):
		if !model.explorer.Initialized() {
			return model, nil
		}
		if err := model.explorer.Logout(); err != nil {
			model.logger.Warn("removing cached tree failed", zap.Error(err))
		}
		model.logger.Info("logged out", zap.String("user", model.user.Username))
		model.user = services.User{}
		model.state.SetTree(nil)
		model.state.ClearFilters()
		model.status = "Logged out - press i to sign in"
		return model, nil
	default:
		return model, nil
	}
}

func (model Model) expandCurrent() (tea.Model, tea.Cmd) {
	node := model.state.CurrentNode()
	if node == nil {
		return model, nil
	}
	if !node.Kind.Expandable() {
		return model.beginView()
	}
	if node.ID != domain.RootID && node.State() != domain.Failed && model.state.IsExpanded(node.ID) {
		model.state.SetExpanded(node.ID, false)
		model.ensureCursorVisible()
		return model, nil
	}
	return model.expandNode(node)
}

func (model Model) expandNode(node *domain.Node) (tea.Model, tea.Cmd) {
	outcome, err := model.explorer.Expand(node.ID)
	if err != nil {
		model.status = fmt.Sprintf("Expand error: %s", describeError(err))
		return model, nil
	}
	model.state.SetExpanded(node.ID, true)
	switch outcome {
	case explorer.Dispatched:
		model.watchNode(node.ID)
		model.status = fmt.Sprintf("Loading %s...", node.Label)
	case explorer.InFlight:
		model.status = fmt.Sprintf("Still loading %s...", node.Label)
	case explorer.AlreadyResolved:
		model.status = fmt.Sprintf("%s (%d items)", node.PathString(), node.ChildCount())
	}
	model.ensureCursorVisible()
	return model, nil
}

// watchNode reports the outcome of the node's pending resolution on the status line.
func (model Model) watchNode(id string) {
	board := model.notices
	var cancel func()
	cancel, err := model.explorer.Watch(id, func(node *domain.Node) {
		switch node.State() {
		case domain.Resolving:
			return
		case domain.Resolved:
			board.post(fmt.Sprintf("Loaded %s (%d items)", node.Label, node.ChildCount()))
		case domain.Failed:
			board.post(fmt.Sprintf("Load error: %s: %s", node.Label, describeError(node.Err())))
		}
		cancel()
	})
	if err != nil {
		model.logger.Debug("watch failed", zap.String("node", id), zap.Error(err))
	}
}

func (model Model) reloadCurrent() (tea.Model, tea.Cmd) {
	node := expandableFor(model.state.CurrentNode())
	if node == nil {
		return model, nil
	}
	if err := model.explorer.ResetNode(node.ID); err != nil {
		if errors.Is(err, domain.ErrInFlight) {
			model.status = fmt.Sprintf("Still loading %s...", node.Label)
			return model, nil
		}
		model.status = fmt.Sprintf("Reload error: %s", describeError(err))
		return model, nil
	}
	model.state.SetTree(model.explorer.Tree())
	model.state.CursorTo(node.ID)
	return model.expandNode(node)
}

func (model Model) refreshAll() (tea.Model, tea.Cmd) {
	if !model.explorer.Initialized() {
		return model, nil
	}
	if err := model.explorer.Refresh(); err != nil {
		model.logger.Warn("refresh failed", zap.Error(err))
		model.status = fmt.Sprintf("Refresh error: %s", describeError(err))
	} else {
		model.status = "Refreshing groups..."
	}
	model.state.SetTree(model.explorer.Tree())
	model.state.Cursor = 0
	model.ensureCursorVisible()
	return model, nil
}

func (model Model) beginInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	model.inputMode = mode
	model.input.Prompt = inputLabel(mode) + ": "
	model.input.SetValue(value)
	model.input.CursorEnd()
	model.status = ""
	return model, model.input.Focus()
}

func (model Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, model.keys.Cancel):
		mode := model.inputMode
		model.inputMode = inputNone
		model.createParent = nil
		model.input.Blur()
		model.status = fmt.Sprintf("%s cancelled", inputLabel(mode))
		return model, nil
	case key.Matches(msg, model.keys.Confirm):
		mode := model.inputMode
		value := strings.TrimSpace(model.input.Value())
		model.inputMode = inputNone
		model.input.Blur()
		return model.submitInput(mode, value)
	}
	var cmd tea.Cmd
	model.input, cmd = model.input.Update(msg)
	return model, cmd
}

func (model Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case inputSearch:
		matches := model.explorer.Search(value)
		ids := make([]string, 0, len(matches))
		for _, match := range matches {
			ids = append(ids, match.NodeID)
		}
		model.state.ApplySearch(value, ids)
		model.ensureCursorVisible()
		switch {
		case value == "":
			model.status = "Search cleared"
		case len(matches) == 0:
			model.status = fmt.Sprintf("No loaded node matches %q", value)
		default:
			model.status = fmt.Sprintf("%d matches for %q - first: %s", len(matches), value, matches[0].Path)
		}
		return model, nil
	case inputExt:
		model.state.FilterExt = value
		model.ensureCursorVisible()
		model.status = "Filter applied"
		return model, nil
	case inputDownload:
		node := model.state.CurrentNode()
		if node == nil || node.Kind != domain.KindFile {
			return model, nil
		}
		if value == "" {
			value = "."
		}
		model.state.LastDownloadDir = value
		return model.runAction(services.ActionRequest{
			Type:       services.ActionDownload,
			ProjectID:  node.Meta.ProjectID,
			Ref:        model.refFor(node),
			RemotePath: node.Meta.Path,
			LocalPath:  value,
		})
	case inputUpload:
		if value == "" {
			model.status = "Upload cancelled"
			return model, nil
		}
		base := filepath.Base(value)
		model.pendingUpload.LocalPath = value
		model.pendingUpload.RemotePath = path.Join(model.uploadDir, base)
		return model.beginInput(inputCommit, "Upload "+base)
	case inputCommit:
		request := model.pendingUpload
		request.CommitMessage = value
		if request.CommitMessage == "" {
			request.CommitMessage = "Upload " + path.Base(request.RemotePath)
		}
		model.pendingUpload = services.ActionRequest{}
		return model.runAction(request)
	case inputGroup, inputProject:
		parent := model.createParent
		model.createParent = nil
		if value == "" || parent == nil {
			model.status = fmt.Sprintf("%s cancelled", inputLabel(mode))
			return model, nil
		}
		model.status = fmt.Sprintf("Creating %s %q in %s...", mode, value, parent.Label)
		return model, model.createCmd(mode, parent, value)
	}
	return model, nil
}

// beginCreate prompts for the name of a group or project placed under the
// nearest node that can hold it.
func (model Model) beginCreate(mode inputMode) (tea.Model, tea.Cmd) {
	if !model.explorer.Initialized() {
		return model, nil
	}
	parent := createParentFor(model.state.CurrentNode(), mode)
	if parent == nil {
		model.status = "Select a group to create a project in"
		return model, nil
	}
	model.createParent = parent
	return model.beginInput(mode, "")
}

func (model Model) createCmd(mode inputMode, parent *domain.Node, name string) tea.Cmd {
	remote := model.remote
	parentID := parent.ID
	namespaceID := parent.RemoteID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
		defer cancel()
		var entry services.Entry
		var err error
		if mode == inputProject {
			entry, err = remote.CreateProject(ctx, name, namespaceID)
		} else {
			entry, err = remote.CreateGroup(ctx, name, services.Slugify(name), namespaceID)
		}
		return createdMsg{parentID: parentID, entry: entry, err: err}
	}
}

func (model Model) finishCreate(msg createdMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		model.logger.Warn("create failed", zap.String("parent", msg.parentID), zap.Error(msg.err))
		model.status = fmt.Sprintf("Create error: %s", describeError(msg.err))
		return model, nil
	}
	model.logger.Info("created",
		zap.String("kind", msg.entry.Kind.String()),
		zap.Int64("id", msg.entry.RemoteID),
		zap.String("parent", msg.parentID),
	)
	model.status = fmt.Sprintf("Created %s %s", msg.entry.Kind, msg.entry.Label)
	return model.reloadListing(msg.parentID)
}

func (model Model) beginView() (tea.Model, tea.Cmd) {
	node := model.state.CurrentNode()
	if node == nil || node.Kind != domain.KindFile {
		model.status = "Select a file to view"
		return model, nil
	}
	return model.runAction(services.ActionRequest{
		Type:       services.ActionView,
		ProjectID:  node.Meta.ProjectID,
		Ref:        model.refFor(node),
		RemotePath: node.Meta.Path,
	})
}

func (model Model) beginUpload() (tea.Model, tea.Cmd) {
	node := model.state.CurrentNode()
	projectID, dir, ok := uploadTarget(node)
	if !ok {
		model.status = "Select a project, directory or file to upload next to"
		return model, nil
	}
	model.uploadDir = dir
	model.pendingUpload = services.ActionRequest{
		Type:      services.ActionUpload,
		ProjectID: projectID,
		Ref:       model.refFor(node),
	}
	return model.beginInput(inputUpload, "")
}

func (model Model) handleViewer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, model.keys.Cancel) || key.Matches(msg, model.keys.Quit) {
		model.viewing = false
		model.viewTitle = ""
		return model, nil
	}
	var cmd tea.Cmd
	model.viewer, cmd = model.viewer.Update(msg)
	return model, cmd
}

func (model Model) runAction(request services.ActionRequest) (tea.Model, tea.Cmd) {
	if model.actions == nil {
		return model, nil
	}
	if model.actionRunning {
		model.status = "A transfer is already running"
		return model, nil
	}
	model.actionRunning = true
	model.actionStage = ""
	model.status = fmt.Sprintf("%s %s...", strings.ToUpper(string(request.Type)), request.RemotePath)
	return model, tea.Batch(model.actionExecuteCmd(request), model.actionProgressCmd())
}

func (model Model) actionExecuteCmd(request services.ActionRequest) tea.Cmd {
	actions := model.actions
	return func() tea.Msg {
		result, err := actions.Execute(context.Background(), request)
		return actionResultMsg{request: request, result: result, err: err}
	}
}

func (model Model) actionProgressCmd() tea.Cmd {
	if model.actionProgress == nil {
		return nil
	}
	provider := model.actionProgress
	return func() tea.Msg {
		for attempt := 0; attempt < progressPolls; attempt++ {
			channel := provider.ActionProgress()
			if channel == nil {
				time.Sleep(progressPollDelay)
				continue
			}
			progress, ok := <-channel
			if !ok {
				break
			}
			return actionProgressMsg{progress: progress}
		}
		return actionProgressMsg{progress: services.ActionProgress{Completed: true}}
	}
}

func (model Model) finishAction(msg actionResultMsg) (tea.Model, tea.Cmd) {
	model.actionRunning = false
	model.actionStage = ""
	label := strings.ToUpper(string(msg.request.Type))
	if msg.err != nil {
		model.status = fmt.Sprintf("%s error: %s", label, describeError(msg.err))
		return model, nil
	}
	model.status = msg.result.Message
	switch msg.request.Type {
	case services.ActionView:
		model.openViewer(msg.request.RemotePath, msg.result.Content)
	case services.ActionUpload:
		return model.afterUpload(msg.request)
	}
	return model, nil
}

func (model *Model) openViewer(title string, content []byte) {
	text := string(content)
	if !utf8.Valid(content) {
		text = fmt.Sprintf("binary file, %s", formatSize(int64(len(content))))
	}
	model.viewer.Width = maxInt(model.width, 20)
	model.viewer.Height = maxInt(model.height-4, 3)
	model.viewer.SetContent(text)
	model.viewer.GotoTop()
	model.viewTitle = title
	model.viewing = true
}

// afterUpload forgets the listing that now has a new or changed file and
// fetches it again when that row is open.
func (model Model) afterUpload(request services.ActionRequest) (tea.Model, tea.Cmd) {
	dir := path.Dir(request.RemotePath)
	id := domain.RepoNodeID(request.ProjectID, dir)
	if dir == "." || dir == "/" {
		id = domain.ProjectNodeID(request.ProjectID)
	}
	return model.reloadListing(id)
}

// reloadListing resets the node with the given id and fetches it again when
// its row is open, keeping the current status line.
func (model Model) reloadListing(id string) (tea.Model, tea.Cmd) {
	if !model.explorer.Initialized() {
		return model, nil
	}
	if err := model.explorer.ResetNode(id); err != nil {
		if !errors.Is(err, explorer.ErrUnknownNode) && !errors.Is(err, domain.ErrInFlight) {
			model.logger.Warn("resetting listing failed", zap.String("node", id), zap.Error(err))
		}
		return model, nil
	}
	model.state.SetTree(model.explorer.Tree())
	model.ensureCursorVisible()
	if !model.state.IsExpanded(id) {
		return model, nil
	}
	node, ok := model.explorer.Lookup(id)
	if !ok {
		return model, nil
	}
	status := model.status
	next, cmd := model.expandNode(node)
	updated := next.(Model)
	updated.status = status
	return updated, cmd
}

func (model Model) refFor(node *domain.Node) string {
	if node != nil && node.Meta.Ref != "" {
		return node.Meta.Ref
	}
	return model.state.Prefs.DefaultRef
}

func (model *Model) ensureCursorVisible() {
	visible := model.state.VisibleNodes()
	if len(visible) == 0 {
		model.state.Cursor = 0
		model.viewTop = 0
		return
	}
	if model.state.Cursor >= len(visible) {
		model.state.Cursor = len(visible) - 1
	}
	if model.state.Cursor < 0 {
		model.state.Cursor = 0
	}
	listHeight := model.listHeight()
	if listHeight <= 0 {
		return
	}
	if model.state.Cursor < model.viewTop {
		model.viewTop = model.state.Cursor
	}
	if model.state.Cursor >= model.viewTop+listHeight {
		model.viewTop = model.state.Cursor - listHeight + 1
	}
	maxTop := len(visible) - listHeight
	if maxTop < 0 {
		maxTop = 0
	}
	if model.viewTop > maxTop {
		model.viewTop = maxTop
	}
}

func (model *Model) listHeight() int {
	return model.height - 6
}

func actionProgressProvider(actions services.Actions) services.ActionProgressProvider {
	provider, _ := actions.(services.ActionProgressProvider)
	return provider
}

// expandableFor returns node itself, or its parent when node is a file.
func expandableFor(node *domain.Node) *domain.Node {
	if node == nil {
		return nil
	}
	if node.Kind.Expandable() {
		return node
	}
	return node.Parent()
}

func uploadTarget(node *domain.Node) (projectID int64, dir string, ok bool) {
	if node == nil {
		return 0, "", false
	}
	switch node.Kind {
	case domain.KindProject:
		return node.Meta.ProjectID, "", true
	case domain.KindDirectory:
		return node.Meta.ProjectID, node.Meta.Path, true
	case domain.KindFile:
		dir := path.Dir(node.Meta.Path)
		if dir == "." {
			dir = ""
		}
		return node.Meta.ProjectID, dir, true
	default:
		return 0, "", false
	}
}

// createParentFor walks up from node to the first row that can hold a new
// group (any group or the root) or project (a group or subgroup).
func createParentFor(node *domain.Node, mode inputMode) *domain.Node {
	for ; node != nil; node = node.Parent() {
		switch node.Kind {
		case domain.KindGroup, domain.KindSubgroup:
			return node
		case domain.KindCollection:
			if mode == inputGroup {
				return node
			}
			return nil
		}
	}
	return nil
}

func yankText(node *domain.Node) string {
	switch {
	case node.Meta.WebURL != "":
		return node.Meta.WebURL
	case node.Meta.Path != "":
		return node.Meta.Path
	case node.Meta.FullPath != "":
		return node.Meta.FullPath
	default:
		return node.PathString()
	}
}

func inputLabel(mode inputMode) string {
	switch mode {
	case inputSearch:
		return "Search"
	case inputExt:
		return "Extension"
	case inputDownload:
		return "Download to"
	case inputUpload:
		return "Upload file"
	case inputCommit:
		return "Commit message"
	case inputGroup:
		return "New group"
	case inputProject:
		return "New project"
	default:
		return "Input"
	}
}

func displayName(user services.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, services.ErrNoToken) {
		return services.ErrNoToken.Error()
	}
	switch services.Classify(err) {
	case services.KindAuth:
		return "access denied, check LABTREE_TOKEN or GITLAB_TOKEN"
	case services.KindRateLimited:
		var remote *services.RemoteError
		if errors.As(err, &remote) && remote.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, retry in %s", remote.RetryAfter)
		}
		return "rate limited, try again shortly"
	}
	return err.Error()
}
