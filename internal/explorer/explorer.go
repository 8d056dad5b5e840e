// Package explorer owns the lazily populated GitLab tree for one session.
//
// An Explorer has a single mutator: Initialize, Expand, Apply, Drain, Search,
// ResetNode, Refresh, Logout and Teardown must be called from one goroutine
// (the UI loop). Remote calls run on background workers which only send
// Resolution values on the Results channel; the mutator applies them.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"labtree/internal/domain"
	"labtree/internal/metrics"
	"labtree/internal/services"
)

var (
	ErrUnknownNode      = errors.New("unknown node")
	ErrNotExpandable    = domain.ErrNotExpandable
	ErrNotInitialized   = errors.New("explorer not initialized")
	ErrPermanentFailure = errors.New("node failed permanently; refresh to retry")
)

type Outcome int

const (
	AlreadyResolved Outcome = iota
	InFlight
	Dispatched
)

func (outcome Outcome) String() string {
	switch outcome {
	case AlreadyResolved:
		return "already_resolved"
	case InFlight:
		return "in_flight"
	case Dispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

const (
	defaultRootLabel  = "Groups"
	defaultMaxWorkers = 8
	resultBuffer      = 64
)

type Options struct {
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
	DefaultRef string
	RootLabel  string
	MaxWorkers int
}

type Explorer struct {
	remote     services.RemoteClient
	store      services.SnapshotStore
	logger     *zap.Logger
	metrics    *metrics.Recorder
	defaultRef string
	rootLabel  string
	maxWorkers int

	tree       *domain.Tree
	sessionKey string
	generation uint64
	pending    int

	ctx     context.Context
	cancel  context.CancelFunc
	slots   chan struct{}
	results chan Resolution
	workers sync.WaitGroup
}

func New(remote services.RemoteClient, store services.SnapshotStore, opts Options) *Explorer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultRef == "" {
		opts.DefaultRef = "main"
	}
	if opts.RootLabel == "" {
		opts.RootLabel = defaultRootLabel
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = defaultMaxWorkers
	}
	return &Explorer{
		remote:     remote,
		store:      store,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		defaultRef: opts.DefaultRef,
		rootLabel:  opts.RootLabel,
		maxWorkers: opts.MaxWorkers,
	}
}

// Initialize seeds the tree from the session's snapshot, or starts cold when
// there is none or it cannot be used. It never calls the remote.
func (explorer *Explorer) Initialize(sessionKey string) (fromCache bool) {
	if explorer.tree != nil {
		explorer.Teardown()
	}
	explorer.sessionKey = sessionKey
	explorer.results = make(chan Resolution, resultBuffer)
	explorer.slots = make(chan struct{}, explorer.maxWorkers)
	explorer.startGeneration()

	tree, err := explorer.loadSnapshot()
	if err != nil {
		explorer.tree = domain.NewTree(explorer.rootLabel)
		return false
	}
	explorer.tree = tree
	return true
}

func (explorer *Explorer) loadSnapshot() (*domain.Tree, error) {
	if explorer.store == nil {
		return nil, services.ErrSnapshotNotFound
	}
	logger := explorer.logger.With(zap.String("session", explorer.sessionKey))
	snapshot, err := explorer.store.Load(explorer.sessionKey)
	if err == nil {
		var tree *domain.Tree
		tree, err = snapshot.Rebuild()
		if err == nil {
			explorer.metrics.RecordCache("load", "hit")
			logger.Info("tree restored from cache", zap.Int("nodes", tree.Len()), zap.Time("saved_at", snapshot.SavedAt))
			return tree, nil
		}
	}
	if errors.Is(err, services.ErrSnapshotNotFound) {
		explorer.metrics.RecordCache("load", "miss")
		logger.Info("no cached tree, starting cold")
		return nil, err
	}
	explorer.metrics.RecordCache("load", "corrupt")
	logger.Warn("discarding unusable cache snapshot", zap.Error(err))
	if invErr := explorer.store.Invalidate(explorer.sessionKey); invErr != nil {
		logger.Warn("remove cache snapshot", zap.Error(invErr))
	}
	return nil, err
}

func (explorer *Explorer) Initialized() bool {
	return explorer.tree != nil
}

func (explorer *Explorer) SessionKey() string {
	return explorer.sessionKey
}

func (explorer *Explorer) Tree() *domain.Tree {
	return explorer.tree
}

func (explorer *Explorer) Lookup(id string) (*domain.Node, bool) {
	if explorer.tree == nil {
		return nil, false
	}
	return explorer.tree.Lookup(id)
}

// Results delivers worker completions; pass each one to Apply.
func (explorer *Explorer) Results() <-chan Resolution {
	return explorer.results
}

// Pending is the number of dispatched resolutions not yet applied.
func (explorer *Explorer) Pending() int {
	return explorer.pending
}

// Watch subscribes fn to state changes of the node with the given id.
func (explorer *Explorer) Watch(id string, fn func(*domain.Node)) (cancel func(), err error) {
	node, err := explorer.node(id)
	if err != nil {
		return nil, err
	}
	return node.Watch(fn), nil
}

func (explorer *Explorer) Expand(id string) (Outcome, error) {
	node, err := explorer.node(id)
	if err != nil {
		return 0, err
	}
	if !node.Kind.Expandable() {
		return 0, fmt.Errorf("%s %s: %w", node.Kind, node.ID, ErrNotExpandable)
	}
	switch node.State() {
	case domain.Resolved:
		explorer.metrics.RecordResolution(node.Kind.String(), "memory_hit")
		return AlreadyResolved, nil
	case domain.Resolving:
		return InFlight, nil
	case domain.Failed:
		if services.Permanent(node.Err()) {
			return 0, fmt.Errorf("%s: %w: %v", node.ID, ErrPermanentFailure, node.Err())
		}
	}
	if err := node.MarkResolving(); err != nil {
		return 0, err
	}
	explorer.dispatch(node)
	return Dispatched, nil
}

func (explorer *Explorer) node(id string) (*domain.Node, error) {
	if explorer.tree == nil {
		return nil, ErrNotInitialized
	}
	node, ok := explorer.tree.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrUnknownNode)
	}
	return node, nil
}

func (explorer *Explorer) dispatch(node *domain.Node) {
	req := explorer.fetchRequestFor(node)
	res := Resolution{
		NodeID:     node.ID,
		node:       node,
		generation: explorer.generation,
	}
	ctx := explorer.ctx
	results := explorer.results
	slots := explorer.slots

	explorer.pending++
	explorer.workers.Add(1)
	explorer.metrics.ResolutionStarted()
	explorer.logger.Debug("resolution dispatched",
		zap.String("node", node.ID),
		zap.String("kind", node.Kind.String()),
	)
	go func() {
		defer explorer.workers.Done()
		defer explorer.metrics.ResolutionFinished()

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		start := time.Now()
		res.Entries, res.Err = req.fetch(ctx, explorer.remote)
		res.Elapsed = time.Since(start)
		<-slots

		select {
		case results <- res:
		case <-ctx.Done():
		}
	}()
}

// Apply merges one worker result into the tree and persists the snapshot on
// success. It returns false when the result is stale and was dropped.
func (explorer *Explorer) Apply(res Resolution) bool {
	if explorer.tree == nil || res.generation != explorer.generation {
		explorer.metrics.RecordResolution("unknown", "stale")
		return false
	}
	explorer.pending--

	node := res.node
	logger := explorer.logger.With(
		zap.String("node", res.NodeID),
		zap.Duration("elapsed", res.Elapsed),
	)
	if node == nil || !explorer.tree.Contains(node) || node.State() != domain.Resolving {
		explorer.metrics.RecordResolution("unknown", "stale")
		logger.Debug("dropping stale resolution")
		return false
	}
	logger = logger.With(zap.String("kind", node.Kind.String()))

	if res.Err != nil {
		explorer.tree.Fail(node, res.Err)
		explorer.metrics.RecordResolution(node.Kind.String(), services.Classify(res.Err).String())
		logger.Warn("resolution failed", zap.Error(res.Err))
		return true
	}

	children := explorer.childrenFor(node, res.Entries)
	if err := explorer.tree.Resolve(node, children); err != nil {
		explorer.tree.Fail(node, err)
		explorer.metrics.RecordResolution(node.Kind.String(), "invalid")
		logger.Warn("resolution rejected", zap.Error(err))
		return true
	}
	explorer.metrics.RecordResolution(node.Kind.String(), "resolved")
	logger.Info("resolution applied", zap.Int("children", len(children)))
	explorer.persist()
	return true
}

// Drain applies results until nothing is pending or ctx ends.
func (explorer *Explorer) Drain(ctx context.Context) error {
	for explorer.pending > 0 {
		select {
		case res := <-explorer.results:
			explorer.Apply(res)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (explorer *Explorer) childrenFor(parent *domain.Node, entries []services.Entry) []*domain.Node {
	children := make([]*domain.Node, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		child := nodeForEntry(parent, entry)
		if child == nil {
			continue
		}
		if _, dup := seen[child.ID]; dup {
			continue
		}
		seen[child.ID] = struct{}{}
		children = append(children, child)
	}
	return children
}

func nodeForEntry(parent *domain.Node, entry services.Entry) *domain.Node {
	var id string
	meta := entry.Meta
	switch entry.Kind {
	case domain.KindGroup, domain.KindSubgroup:
		id = domain.GroupNodeID(entry.RemoteID)
	case domain.KindProject:
		id = domain.ProjectNodeID(entry.RemoteID)
		if meta.ProjectID == 0 {
			meta.ProjectID = entry.RemoteID
		}
	case domain.KindDirectory, domain.KindFile:
		if meta.ProjectID == 0 {
			meta.ProjectID = parent.Meta.ProjectID
		}
		if meta.Ref == "" {
			meta.Ref = parent.Meta.Ref
		}
		id = domain.RepoNodeID(meta.ProjectID, meta.Path)
	default:
		return nil
	}
	// top-level listings report groups; anything nested is a subgroup
	kind := entry.Kind
	if kind == domain.KindGroup && parent.Kind != domain.KindCollection {
		kind = domain.KindSubgroup
	}
	node := domain.NewNode(id, kind, entry.Label)
	node.RemoteID = entry.RemoteID
	node.Meta = meta
	return node
}

func (explorer *Explorer) persist() {
	if explorer.store == nil {
		return
	}
	snapshot := services.CaptureSnapshot(explorer.sessionKey, explorer.tree)
	if err := explorer.store.Save(explorer.sessionKey, snapshot); err != nil {
		explorer.metrics.RecordCache("save", "error")
		explorer.logger.Warn("saving cache snapshot failed", zap.Error(err))
		return
	}
	explorer.metrics.RecordCache("save", "ok")
}

// ResetNode drops a node's children so the next Expand fetches them again.
// A node that is still resolving is left alone and reported as in flight.
func (explorer *Explorer) ResetNode(id string) error {
	node, err := explorer.node(id)
	if err != nil {
		return err
	}
	switch node.State() {
	case domain.Unresolved:
		return nil
	case domain.Resolving:
		return fmt.Errorf("reset %s: %w", node.ID, domain.ErrInFlight)
	}
	explorer.tree.Reset(node)
	explorer.persist()
	return nil
}

// Refresh forgets the cached tree for this session and starts over from an
// empty root, dispatching the top-level listing again.
func (explorer *Explorer) Refresh() error {
	if explorer.tree == nil {
		return ErrNotInitialized
	}
	var invErr error
	if explorer.store != nil {
		invErr = explorer.store.Invalidate(explorer.sessionKey)
		outcome := "ok"
		if invErr != nil {
			outcome = "error"
		}
		explorer.metrics.RecordCache("invalidate", outcome)
	}
	explorer.cancel()
	explorer.startGeneration()
	explorer.tree = domain.NewTree(explorer.rootLabel)
	explorer.logger.Info("tree refreshed", zap.String("session", explorer.sessionKey))
	if _, err := explorer.Expand(domain.RootID); err != nil {
		return err
	}
	return invErr
}

// Logout removes the session snapshot and tears the tree down.
func (explorer *Explorer) Logout() error {
	var err error
	if explorer.store != nil && explorer.sessionKey != "" {
		err = explorer.store.Invalidate(explorer.sessionKey)
	}
	explorer.Teardown()
	return err
}

// Teardown cancels in-flight work, waits for workers and drops the tree.
// The snapshot on disk is kept.
func (explorer *Explorer) Teardown() {
	if explorer.tree == nil {
		return
	}
	explorer.cancel()
	explorer.workers.Wait()
	close(explorer.results)
	explorer.tree = nil
	explorer.pending = 0
	explorer.generation++
	explorer.logger.Info("tree torn down", zap.String("session", explorer.sessionKey))
}

func (explorer *Explorer) startGeneration() {
	explorer.generation++
	explorer.pending = 0
	explorer.ctx, explorer.cancel = context.WithCancel(context.Background())
}
