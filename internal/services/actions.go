package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"labtree/internal/metrics"
)

const maxUploadBytes = 100 * 1024 * 1024

type ActionProgress struct {
	Type      ActionType
	Stage     string
	Path      string
	Completed bool
}

// FileActions runs view, download and upload requests against a RemoteClient.
type FileActions struct {
	remote  RemoteClient
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu       sync.RWMutex
	progress chan ActionProgress
}

func NewFileActions(remote RemoteClient, logger *zap.Logger, recorder *metrics.Recorder) *FileActions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileActions{
		remote:  remote,
		logger:  logger,
		metrics: recorder,
	}
}

// ActionProgress returns the progress channel of the action currently running, or nil.
func (actions *FileActions) ActionProgress() <-chan ActionProgress {
	actions.mu.RLock()
	defer actions.mu.RUnlock()
	return actions.progress
}

func (actions *FileActions) Execute(ctx context.Context, req ActionRequest) (ActionResult, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		return ActionResult{Type: req.Type}, err
	}

	progress := make(chan ActionProgress, 8)
	actions.setProgress(progress)
	defer func() {
		actions.setProgress(nil)
		close(progress)
	}()

	var result ActionResult
	var err error
	switch req.Type {
	case ActionView:
		result, err = actions.view(ctx, progress, req)
	case ActionDownload:
		result, err = actions.download(ctx, progress, req)
	case ActionUpload:
		result, err = actions.upload(ctx, progress, req)
	default:
		return ActionResult{Type: req.Type}, fmt.Errorf("unsupported action %q", req.Type)
	}
	result.Type = req.Type
	result.RemotePath = req.RemotePath
	result.Duration = time.Since(start)

	actions.metrics.RecordTransfer(string(req.Type), result.Bytes, err == nil)
	fields := []zap.Field{
		zap.String("action", string(req.Type)),
		zap.Int64("project", req.ProjectID),
		zap.String("remote_path", req.RemotePath),
		zap.String("local_path", result.LocalPath),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("elapsed", result.Duration),
	}
	if err != nil {
		actions.logger.Warn("file action failed", append(fields, zap.Error(err))...)
		return result, err
	}
	actions.logger.Info("file action completed", fields...)
	actionProgressNonBlocking(progress, ActionProgress{Type: req.Type, Path: req.RemotePath, Completed: true})
	return result, nil
}

func (actions *FileActions) setProgress(progress chan ActionProgress) {
	actions.mu.Lock()
	defer actions.mu.Unlock()
	actions.progress = progress
}

func (actions *FileActions) view(ctx context.Context, progress chan<- ActionProgress, req ActionRequest) (ActionResult, error) {
	actionProgressNonBlocking(progress, ActionProgress{Type: req.Type, Stage: "fetching", Path: req.RemotePath})
	content, err := actions.remote.FetchFileContent(ctx, req.ProjectID, req.Ref, req.RemotePath)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{
		Bytes:   int64(len(content)),
		Content: content,
		Message: fmt.Sprintf("%s (%d bytes)", path.Base(req.RemotePath), len(content)),
	}, nil
}

func (actions *FileActions) download(ctx context.Context, progress chan<- ActionProgress, req ActionRequest) (ActionResult, error) {
	target, err := resolveDestination(req.LocalPath, req.RemotePath)
	if err != nil {
		return ActionResult{}, err
	}
	actionProgressNonBlocking(progress, ActionProgress{Type: req.Type, Stage: "fetching", Path: req.RemotePath})
	content, err := actions.remote.FetchFileContent(ctx, req.ProjectID, req.Ref, req.RemotePath)
	if err != nil {
		return ActionResult{}, err
	}
	actionProgressNonBlocking(progress, ActionProgress{Type: req.Type, Stage: "writing", Path: target})
	if err := writeFileAtomic(target, content); err != nil {
		return ActionResult{LocalPath: target}, err
	}
	return ActionResult{
		LocalPath: target,
		Bytes:     int64(len(content)),
		Message:   fmt.Sprintf("saved %s", target),
	}, nil
}

func (actions *FileActions) upload(ctx context.Context, progress chan<- ActionProgress, req ActionRequest) (ActionResult, error) {
	source, err := filepath.Abs(req.LocalPath)
	if err != nil {
		return ActionResult{}, err
	}
	info, err := os.Stat(source)
	if err != nil {
		return ActionResult{LocalPath: source}, err
	}
	if info.IsDir() {
		return ActionResult{LocalPath: source}, fmt.Errorf("%s is a directory", source)
	}
	if info.Size() > maxUploadBytes {
		return ActionResult{LocalPath: source}, fmt.Errorf("%s exceeds %d bytes", source, maxUploadBytes)
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return ActionResult{LocalPath: source}, err
	}
	actionProgressNonBlocking(progress, ActionProgress{Type: req.Type, Stage: "committing", Path: req.RemotePath})
	committed, err := actions.remote.UploadFile(ctx, UploadRequest{
		ProjectID:     req.ProjectID,
		Branch:        req.Ref,
		Path:          req.RemotePath,
		Content:       content,
		CommitMessage: req.CommitMessage,
	})
	if err != nil {
		return ActionResult{LocalPath: source}, err
	}
	return ActionResult{
		LocalPath: source,
		Bytes:     int64(len(content)),
		Message:   fmt.Sprintf("%sd %s (%s)", committed.Action, committed.Path, shortCommit(committed.CommitID)),
	}, nil
}

func validateRequest(req ActionRequest) error {
	if req.ProjectID == 0 {
		return errors.New("no project selected")
	}
	if strings.Trim(req.RemotePath, "/") == "" {
		return errors.New("remote path required")
	}
	if (req.Type == ActionDownload || req.Type == ActionUpload) && req.LocalPath == "" {
		return errors.New("local path required")
	}
	if req.Type == ActionUpload && req.Ref == "" {
		return errors.New("branch required")
	}
	return nil
}

// resolveDestination treats an existing directory or a trailing separator as "save inside".
func resolveDestination(destination, remotePath string) (string, error) {
	abs, err := filepath.Abs(destination)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(destination, string(os.PathSeparator)) || strings.HasSuffix(destination, "/") {
		return filepath.Join(abs, path.Base(remotePath)), nil
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return filepath.Join(abs, path.Base(remotePath)), nil
	}
	return abs, nil
}

func shortCommit(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func actionProgressNonBlocking(ch chan<- ActionProgress, msg ActionProgress) {
	select {
	case ch <- msg:
	default:
	}
}
