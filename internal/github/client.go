// Package github is a small read-only client for the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.github.com"
	userAgent      = "GitHub-Summarizer/1.0"
	acceptHeader   = "application/vnd.github.v3+json"
)

// StatusError is returned when GitHub answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: %s returned status %d", e.Path, e.StatusCode)
}

// RequestRecorder is told about every completed request.
type RequestRecorder interface {
	RecordGitHubRequest(endpoint, status string)
}

type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Recorder          RequestRecorder
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   RequestRecorder
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		recorder:   opts.Recorder,
	}
}

type User struct {
	Login       string  `json:"login"`
	Name        *string `json:"name"`
	Bio         *string `json:"bio"`
	PublicRepos int     `json:"public_repos"`
	Followers   int     `json:"followers"`
	Following   int     `json:"following"`
	Location    *string `json:"location"`
	Company     *string `json:"company"`
	Blog        *string `json:"blog"`
	CreatedAt   string  `json:"created_at"`
}

type Owner struct {
	Login     string `json:"login"`
	Type      string `json:"type"`
	AvatarURL string `json:"avatar_url"`
}

type Repository struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     *string  `json:"description"`
	Language        *string  `json:"language"`
	Topics          []string `json:"topics"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Size            int      `json:"size"`
	DefaultBranch   string   `json:"default_branch"`
	Private         bool     `json:"private"`
	HasWiki         bool     `json:"has_wiki"`
	HasPages        bool     `json:"has_pages"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	Owner           Owner    `json:"owner"`
}

func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "users", "/users/"+url.PathEscape(username), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUserRepos returns the user's most recently updated repositories.
func (c *Client) ListUserRepos(ctx context.Context, username string, perPage int) ([]Repository, error) {
	path := fmt.Sprintf("/users/%s/repos?sort=updated&per_page=%d", url.PathEscape(username), perPage)
	var repos []Repository
	if err := c.getJSON(ctx, "user_repos", path, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.getJSON(ctx, "repos", repoPath(owner, repo, ""), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetLanguages returns language names ordered by byte count, largest first.
func (c *Client) GetLanguages(ctx context.Context, owner, repo string) ([]string, error) {
	var bytesByLang map[string]int64
	if err := c.getJSON(ctx, "languages", repoPath(owner, repo, "/languages"), &bytesByLang); err != nil {
		return nil, err
	}
	langs := make([]string, 0, len(bytesByLang))
	for lang := range bytesByLang {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if bytesByLang[langs[i]] != bytesByLang[langs[j]] {
			return bytesByLang[langs[i]] > bytesByLang[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs, nil
}

// GetReadme returns the decoded README of a repository.
func (c *Client) GetReadme(ctx context.Context, owner, repo string) (string, error) {
	var readme struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, "readme", repoPath(owner, repo, "/readme"), &readme); err != nil {
		return "", err
	}
	if readme.Encoding != "" && readme.Encoding != "base64" {
		return readme.Content, nil
	}
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(readme.Content)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("github: failed to decode readme: %w", err)
	}
	return string(decoded), nil
}

func repoPath(owner, repo, suffix string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + suffix
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("github: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github: failed to build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, "error")
		return fmt.Errorf("github: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	c.record(endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) record(endpoint, status string) {
	if c.recorder != nil {
		c.recorder.RecordGitHubRequest(endpoint, status)
	}
}
