package services

import (
	"time"

	"labtree/internal/domain"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Entry is one child listed by the remote, before it becomes a tree node.
type Entry struct {
	RemoteID int64
	Kind     domain.Kind
	Label    string
	Meta     domain.Metadata
}

type UploadResult struct {
	Action   string
	Path     string
	CommitID string
}

type ActionResult struct {
	Type       ActionType
	RemotePath string
	LocalPath  string
	Bytes      int64
	Content    []byte
	Message    string
	Duration   time.Duration
}
