package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"labtree/internal/domain"
)

const snapshotVersion = 1
const maxSnapshotBytes = 50 * 1024 * 1024

const (
	entryResolved   = "resolved"
	entryUnresolved = "unresolved"
)

type Snapshot struct {
	Version    int             `json:"version"`
	SessionKey string          `json:"sessionKey"`
	SavedAt    time.Time       `json:"savedAt"`
	RootID     string          `json:"rootId"`
	Entries    []SnapshotEntry `json:"entries"`
}

type SnapshotEntry struct {
	ID       string          `json:"id"`
	RemoteID int64           `json:"remoteId,omitempty"`
	Kind     domain.Kind     `json:"kind"`
	Label    string          `json:"label"`
	ParentID string          `json:"parentId,omitempty"`
	Children []string        `json:"children,omitempty"`
	State    string          `json:"state"`
	Meta     domain.Metadata `json:"meta"`
}

func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "labtree"), nil
}

// CaptureSnapshot projects the materialized tree; Resolving and Failed nodes are stored as unresolved.
func CaptureSnapshot(sessionKey string, tree *domain.Tree) Snapshot {
	snapshot := Snapshot{
		Version:    snapshotVersion,
		SessionKey: sessionKey,
		SavedAt:    time.Now().UTC(),
		RootID:     tree.Root().ID,
		Entries:    make([]SnapshotEntry, 0, tree.Len()),
	}
	tree.Walk(func(node *domain.Node, depth int) bool {
		entry := SnapshotEntry{
			ID:       node.ID,
			RemoteID: node.RemoteID,
			Kind:     node.Kind,
			Label:    node.Label,
			State:    entryUnresolved,
			Meta:     node.Meta,
		}
		if parent := node.Parent(); parent != nil {
			entry.ParentID = parent.ID
		}
		if node.IsResolved() {
			entry.State = entryResolved
			for _, child := range node.Children() {
				entry.Children = append(entry.Children, child.ID)
			}
		}
		snapshot.Entries = append(snapshot.Entries, entry)
		return true
	})
	return snapshot
}

func (snapshot Snapshot) Validate() error {
	if snapshot.RootID == "" {
		return errors.New("missing root id")
	}
	entries := make(map[string]SnapshotEntry, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		if entry.ID == "" {
			return errors.New("entry without id")
		}
		if _, dup := entries[entry.ID]; dup {
			return fmt.Errorf("duplicate entry %q", entry.ID)
		}
		if entry.State != entryResolved && entry.State != entryUnresolved {
			return fmt.Errorf("entry %q has state %q", entry.ID, entry.State)
		}
		entries[entry.ID] = entry
	}
	root, ok := entries[snapshot.RootID]
	if !ok {
		return fmt.Errorf("root %q missing", snapshot.RootID)
	}
	if root.ParentID != "" || root.Kind != domain.KindCollection {
		return fmt.Errorf("root %q is not a collection", snapshot.RootID)
	}
	for _, entry := range snapshot.Entries {
		if entry.ID != snapshot.RootID {
			if _, ok := entries[entry.ParentID]; !ok {
				return fmt.Errorf("entry %q has dangling parent %q", entry.ID, entry.ParentID)
			}
		}
		if len(entry.Children) > 0 && entry.State != entryResolved {
			return fmt.Errorf("entry %q has children but is unresolved", entry.ID)
		}
		for _, childID := range entry.Children {
			child, ok := entries[childID]
			if !ok {
				return fmt.Errorf("entry %q lists missing child %q", entry.ID, childID)
			}
			if child.ParentID != entry.ID {
				return fmt.Errorf("child %q does not point back to %q", childID, entry.ID)
			}
			if !entry.Kind.Allows(child.Kind) {
				return fmt.Errorf("%s %q cannot own %s %q", entry.Kind, entry.ID, child.Kind, childID)
			}
		}
	}
	visited := make(map[string]bool, len(entries))
	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return fmt.Errorf("entry %q reached twice", id)
		}
		visited[id] = true
		for _, childID := range entries[id].Children {
			if err := visit(childID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(snapshot.RootID); err != nil {
		return err
	}
	if len(visited) != len(entries) {
		return fmt.Errorf("%d entries unreachable from root", len(entries)-len(visited))
	}
	return nil
}

// Rebuild reconstructs a tree without any remote call.
func (snapshot Snapshot) Rebuild() (*domain.Tree, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	entries := make(map[string]SnapshotEntry, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		entries[entry.ID] = entry
	}
	rootEntry := entries[snapshot.RootID]
	tree := domain.NewTree(rootEntry.Label)
	tree.Root().Meta = rootEntry.Meta

	var build func(node *domain.Node, entry SnapshotEntry) error
	build = func(node *domain.Node, entry SnapshotEntry) error {
		if entry.State != entryResolved {
			return nil
		}
		children := make([]*domain.Node, 0, len(entry.Children))
		for _, childID := range entry.Children {
			childEntry := entries[childID]
			child := domain.NewNode(childEntry.ID, childEntry.Kind, childEntry.Label)
			child.RemoteID = childEntry.RemoteID
			child.Meta = childEntry.Meta
			children = append(children, child)
		}
		if err := tree.Resolve(node, children); err != nil {
			return err
		}
		for _, child := range children {
			if err := build(child, entries[child.ID]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := build(tree.Root(), rootEntry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	return tree, nil
}

type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (store *FileStore) Path(sessionKey string) string {
	sum := sha256.Sum256([]byte(sessionKey))
	return filepath.Join(store.dir, slug(sessionKey)+"-"+hex.EncodeToString(sum[:4])+".json")
}

func (store *FileStore) Load(sessionKey string) (Snapshot, error) {
	path := store.Path(sessionKey)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if info.Size() > maxSnapshotBytes {
		return Snapshot{}, fmt.Errorf("%w: %d bytes exceeds limit", ErrCacheCorrupt, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if snapshot.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: version %d", ErrCacheCorrupt, snapshot.Version)
	}
	if snapshot.SessionKey != sessionKey {
		return Snapshot{}, fmt.Errorf("%w: belongs to %q", ErrCacheCorrupt, snapshot.SessionKey)
	}
	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	return snapshot, nil
}

func (store *FileStore) Save(sessionKey string, snapshot Snapshot) error {
	snapshot.Version = snapshotVersion
	snapshot.SessionKey = sessionKey
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if len(data) > maxSnapshotBytes {
		return fmt.Errorf("snapshot too large: %d bytes", len(data))
	}
	return writeFileAtomic(store.Path(sessionKey), data)
}

func (store *FileStore) Invalidate(sessionKey string) error {
	err := os.Remove(store.Path(sessionKey))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		// Windows refuses to rename over an existing file.
		if runtime.GOOS == "windows" {
			if rmErr := os.Remove(path); rmErr == nil {
				if err = os.Rename(tmpName, path); err == nil {
					return nil
				}
			}
		}
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func slug(value string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	if builder.Len() > 64 {
		return builder.String()[:64]
	}
	return builder.String()
}
