package services

type ActionType string

const (
	ActionView     ActionType = "view"
	ActionDownload ActionType = "download"
	ActionUpload   ActionType = "upload"
)

type ActionRequest struct {
	Type          ActionType
	ProjectID     int64
	Ref           string
	RemotePath    string
	LocalPath     string
	CommitMessage string
}

type UploadRequest struct {
	ProjectID     int64
	Branch        string
	Path          string
	Content       []byte
	CommitMessage string
}
