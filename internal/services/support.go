package services

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"unicode"
)

var ErrNoToken = errors.New("no access token: set LABTREE_TOKEN or GITLAB_TOKEN")

var tokenEnvVars = []string{"LABTREE_TOKEN", "GITLAB_TOKEN"}

type EnvTokenProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvTokenProvider() *EnvTokenProvider {
	return &EnvTokenProvider{lookup: os.LookupEnv}
}

func (provider *EnvTokenProvider) Token() (string, error) {
	for _, name := range tokenEnvVars {
		if value, ok := provider.lookup(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
	}
	return "", ErrNoToken
}

type StaticToken string

func (token StaticToken) Token() (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	return string(token), nil
}

// SessionKey identifies whose snapshot is loaded: the API host plus the account name.
func SessionKey(baseURL string, user User) string {
	host := baseURL
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	name := user.Username
	if name == "" {
		name = user.Name
	}
	return strings.ToLower(host) + "/" + name
}

const maxSlugLength = 255

// Slugify turns a display name into a GitLab path: lower case, whitespace runs
// become dashes, and anything outside [a-z0-9-] is dropped.
func Slugify(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case space:
			b.WriteByte('-')
		}
		space = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return slug
}
