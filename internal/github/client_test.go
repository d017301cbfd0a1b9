package github

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderStub struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorderStub) RecordGitHubRequest(endpoint, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, endpoint+":"+status)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Equal(t, "GitHub-Summarizer/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"login":"octocat","name":"The Octocat","bio":null,"public_repos":8,"followers":100,"following":9,"created_at":"2011-01-25T18:44:36Z"}`))
	})
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[{"name":"Hello-World","stargazers_count":5,"forks_count":2,"updated_at":"2024-01-01T00:00:00Z"}]`))
	})
	mux.HandleFunc("/repos/octocat/Hello-World", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Hello-World","description":"My first repo","language":"Go","topics":["demo"],"stargazers_count":42,"default_branch":"main","owner":{"login":"octocat","type":"User","avatar_url":"https://avatars/1"}}`))
	})
	mux.HandleFunc("/repos/octocat/Hello-World/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Shell":10,"Go":5000,"Makefile":10}`))
	})
	mux.HandleFunc("/repos/octocat/Hello-World/readme", func(w http.ResponseWriter, r *http.Request) {
		encoded := base64.StdEncoding.EncodeToString([]byte("# Hello World\n\nThis is a README file for testing."))
		// GitHub wraps base64 content with newlines.
		w.Write([]byte(`{"encoding":"base64","content":"` + encoded[:20] + `\n` + encoded[20:] + `"}`))
	})
	mux.HandleFunc("/repos/octocat/private", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func TestClient(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	rec := &recorderStub{}
	c := NewClient(Options{BaseURL: srv.URL + "/", RequestsPerSecond: 100, Recorder: rec})
	ctx := context.Background()

	user, err := c.GetUser(ctx, "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.Login)
	require.NotNil(t, user.Name)
	assert.Equal(t, "The Octocat", *user.Name)
	assert.Nil(t, user.Bio)
	assert.Equal(t, 8, user.PublicRepos)

	repos, err := c.ListUserRepos(ctx, "octocat", 10)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, 5, repos[0].StargazersCount)

	repo, err := c.GetRepository(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	assert.Equal(t, 42, repo.StargazersCount)
	assert.Equal(t, "User", repo.Owner.Type)
	assert.Equal(t, []string{"demo"}, repo.Topics)

	langs, err := c.GetLanguages(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Makefile", "Shell"}, langs)

	readme, err := c.GetReadme(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	assert.Equal(t, "# Hello World\n\nThis is a README file for testing.", readme)

	assert.Contains(t, rec.calls, "users:2xx")
	assert.Contains(t, rec.calls, "readme:2xx")
}

func TestClient_StatusError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})

	_, err := c.GetRepository(context.Background(), "octocat", "private")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClient_TokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"login":"x"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL, Token: "secret"}).GetUser(context.Background(), "x")
	assert.NoError(t, err)
}

func TestClient_CanceledContext(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetUser(ctx, "octocat")
	assert.Error(t, err)
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		repo  string
		err   bool
	}{
		{raw: "https://github.com/octocat", owner: "octocat"},
		{raw: "https://github.com/octocat/", owner: "octocat"},
		{raw: "https://github.com/octocat/Hello-World", owner: "octocat", repo: "Hello-World"},
		{raw: "https://github.com/octocat/Hello-World/", owner: "octocat", repo: "Hello-World"},
		{raw: "https://github.com/some.org/my_repo.js", owner: "some.org", repo: "my_repo.js"},
		{raw: "http://github.com/octocat", err: true},
		{raw: "https://gitlab.com/octocat", err: true},
		{raw: "https://github.com/octocat/Hello-World/tree/main", err: true},
		{raw: "https://github.com/", err: true},
		{raw: "https://github.com/octo cat", err: true},
		{raw: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			owner, repo, err := ParseURL(tt.raw)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidURL)
				assert.False(t, IsValidURL(tt.raw))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}
