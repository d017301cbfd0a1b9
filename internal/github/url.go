package github

import (
	"errors"
	"regexp"
)

// ErrInvalidURL is returned for anything that is not a github.com owner or owner/repo URL.
var ErrInvalidURL = errors.New("invalid GitHub URL format")

var (
	urlPattern   = regexp.MustCompile(`^https://github\.com/[\w\-.]+(?:/[\w\-.]+)?/?$`)
	partsPattern = regexp.MustCompile(`^https://github\.com/([^/]+)(?:/([^/]+))?`)
)

// IsValidURL reports whether raw is https://github.com/<owner> or
// https://github.com/<owner>/<repo>, with an optional trailing slash.
func IsValidURL(raw string) bool {
	return urlPattern.MatchString(raw)
}

// ParseURL splits a GitHub URL into owner and repo. repo is empty for a user URL.
func ParseURL(raw string) (owner, repo string, err error) {
	if !IsValidURL(raw) {
		return "", "", ErrInvalidURL
	}
	m := partsPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", ErrInvalidURL
	}
	return m[1], m[2], nil
}
