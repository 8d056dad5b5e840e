package ui

import (
	"labtree/internal/explorer"
	"labtree/internal/services"
)

type loginMsg struct {
	user       services.User
	sessionKey string
	err        error
}

type resolutionMsg struct {
	res explorer.Resolution
	ok  bool
}

type actionResultMsg struct {
	request services.ActionRequest
	result  services.ActionResult
	err     error
}

type actionProgressMsg struct {
	progress services.ActionProgress
}

type createdMsg struct {
	parentID string
	entry    services.Entry
	err      error
}
