package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrAuth             = errors.New("authentication failed")
	ErrNotFound         = errors.New("not found")
	ErrNetwork          = errors.New("network error")
	ErrRateLimited      = errors.New("rate limited")
	ErrRejected         = errors.New("request rejected")
	ErrCacheCorrupt     = errors.New("cache snapshot corrupt")
	ErrSnapshotNotFound = errors.New("cache snapshot not found")
	ErrPageLimit        = errors.New("listing exceeds page limit")
	ErrEmptyName        = errors.New("name is empty")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindNotFound
	KindNetwork
	KindRateLimited
	KindCacheCorrupt
	KindRejected
)

func (kind ErrorKind) String() string {
	switch kind {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindCacheCorrupt:
		return "cache_corrupt"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type RemoteError struct {
	Op         string
	Status     int
	Kind       error
	RetryAfter time.Duration
	Err        error
}

func (err *RemoteError) Error() string {
	message := err.Kind.Error()
	if err.Status != 0 {
		message = fmt.Sprintf("%s (HTTP %d)", message, err.Status)
	}
	if err.Err != nil {
		message = fmt.Sprintf("%s: %v", message, err.Err)
	}
	return err.Op + ": " + message
}

func (err *RemoteError) Unwrap() []error {
	if err.Err == nil {
		return []error{err.Kind}
	}
	return []error{err.Kind, err.Err}
}

func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCacheCorrupt):
		return KindCacheCorrupt
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// Permanent reports whether re-expanding after err cannot help until the tree is refreshed.
func Permanent(err error) bool {
	return Classify(err) == KindNotFound
}

func statusError(op string, status int, body string) error {
	remote := &RemoteError{Op: op, Status: status}
	switch {
	case status == 401 || status == 403:
		remote.Kind = ErrAuth
	case status == 404:
		remote.Kind = ErrNotFound
	case status == 429:
		remote.Kind = ErrRateLimited
	case status == 400 || status == 409 || status == 422:
		remote.Kind = ErrRejected
	default:
		remote.Kind = ErrNetwork
	}
	if body != "" {
		remote.Err = errors.New(body)
	}
	return remote
}
