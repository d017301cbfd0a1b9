// Package summarize builds the response for a GitHub user or repository URL.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marunose/internal/github"
	"marunose/internal/logger"
	"marunose/internal/summary"
)

const (
	TypeUserProfile = "user_profile"
	TypeRepository  = "repository"

	userRepoPageSize  = 10
	recentRepoCount   = 5
	readmeMissing     = "README file could not be found or read."
	readmeMissingFact = "Unable to analyze README"
)

// GitHubAPI is the subset of the GitHub client the service needs.
type GitHubAPI interface {
	GetUser(ctx context.Context, username string) (*github.User, error)
	ListUserRepos(ctx context.Context, username string, perPage int) ([]github.Repository, error)
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetLanguages(ctx context.Context, owner, repo string) ([]string, error)
	GetReadme(ctx context.Context, owner, repo string) (string, error)
}

// ReadmeSummarizer is satisfied by *summary.Chain.
type ReadmeSummarizer interface {
	Invoke(ctx context.Context, readme string) summary.Result
}

type Options struct {
	IncludeFullReadme bool `json:"includeFullReadme"`
}

type Service struct {
	github  GitHubAPI
	readmes ReadmeSummarizer
	log     *slog.Logger
}

func NewService(gh GitHubAPI, readmes ReadmeSummarizer, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{github: gh, readmes: readmes, log: log}
}

// Summarize dispatches on the URL shape. GitHub failures produce a degraded
// result rather than an error; only an unparseable URL returns an error.
func (s *Service) Summarize(ctx context.Context, githubURL string, opts Options) (interface{}, error) {
	owner, repo, err := github.ParseURL(githubURL)
	if err != nil {
		return nil, err
	}
	if repo == "" {
		return s.summarizeUser(ctx, owner), nil
	}
	return s.summarizeRepository(ctx, owner, repo, opts), nil
}

func (s *Service) summarizeUser(ctx context.Context, username string) *UserProfile {
	user, err := s.github.GetUser(ctx, username)
	if err != nil {
		s.log.Warn("Failed to fetch GitHub user", "username", username, "error", err)
		return &UserProfile{
			Type:               TypeUserProfile,
			Username:           username,
			Summary:            fmt.Sprintf("Failed to fetch information for GitHub user %s.", username),
			RecentRepositories: []RecentRepository{},
		}
	}

	recent := []RecentRepository{}
	repos, err := s.github.ListUserRepos(ctx, username, userRepoPageSize)
	if err != nil {
		s.log.Warn("Failed to fetch GitHub user repositories", "username", username, "error", err)
	}
	for i, r := range repos {
		if i == recentRepoCount {
			break
		}
		recent = append(recent, RecentRepository{
			Name:        r.Name,
			Description: r.Description,
			Language:    r.Language,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			UpdatedAt:   r.UpdatedAt,
		})
	}

	if user.Login != "" {
		username = user.Login
	}
	display := username
	if user.Name != nil && *user.Name != "" {
		display = *user.Name
	}

	return &UserProfile{
		Type:     TypeUserProfile,
		Username: username,
		Name:     user.Name,
		Bio:      user.Bio,
		Summary: fmt.Sprintf("%s is a GitHub user with %d public repositories. They have %d followers and follow %d users.",
			display, user.PublicRepos, user.Followers, user.Following),
		Stats: UserStats{
			PublicRepos: user.PublicRepos,
			Followers:   user.Followers,
			Following:   user.Following,
			Location:    user.Location,
			Company:     user.Company,
			Blog:        user.Blog,
			CreatedAt:   user.CreatedAt,
		},
		RecentRepositories: recent,
	}
}

func (s *Service) summarizeRepository(ctx context.Context, owner, repo string, opts Options) interface{} {
	fullName := owner + "/" + repo

	meta, err := s.github.GetRepository(ctx, owner, repo)
	if err != nil {
		s.log.Warn("Failed to fetch GitHub repository", "repository", fullName, "error", err)
		return &RepositoryFailure{
			Type:       TypeRepository,
			Repository: fullName,
			Summary:    fmt.Sprintf("Failed to fetch information for repository %s.", fullName),
			Error:      "Failed to fetch repository data",
		}
	}

	languages, err := s.github.GetLanguages(ctx, owner, repo)
	if err != nil {
		s.log.Debug("Failed to fetch repository languages", "repository", fullName, "error", err)
		languages = []string{}
	}

	var (
		readmeSummary string
		coolFacts     = []string{}
		readmeContent *string
	)
	readme, err := s.github.GetReadme(ctx, owner, repo)
	var statusErr *github.StatusError
	switch {
	case err == nil:
		res := s.readmes.Invoke(ctx, readme)
		readmeSummary = res.Summary
		if res.CoolFacts != nil {
			coolFacts = res.CoolFacts
		}
		if opts.IncludeFullReadme {
			readmeContent = &readme
		}
	case errors.As(err, &statusErr):
		// No README: the description is used instead.
		s.log.Debug("Repository has no readable README", "repository", fullName, "status", statusErr.StatusCode)
	default:
		s.log.Warn("Failed to fetch README", "repository", fullName, "error", err)
		readmeSummary = readmeMissing
		coolFacts = []string{readmeMissingFact}
	}

	summaryText := readmeSummary
	if summaryText == "" && meta.Description != nil {
		summaryText = *meta.Description
	}
	if summaryText == "" {
		summaryText = fullName + " repository"
	}

	topics := meta.Topics
	if topics == nil {
		topics = []string{}
	}

	return &Repository{
		Type:          TypeRepository,
		Repository:    fullName,
		URL:           "https://github.com/" + fullName,
		Name:          meta.Name,
		Description:   meta.Description,
		Summary:       summaryText,
		CoolFacts:     coolFacts,
		ReadmeContent: readmeContent,
		Insights: Insights{
			PrimaryLanguage: meta.Language,
			Languages:       languages,
			Topics:          topics,
			LastUpdated:     meta.UpdatedAt,
			CreatedAt:       meta.CreatedAt,
			Stars:           meta.StargazersCount,
			Forks:           meta.ForksCount,
			Issues:          meta.OpenIssuesCount,
			Size:            meta.Size,
			DefaultBranch:   meta.DefaultBranch,
			IsPrivate:       meta.Private,
			HasWiki:         meta.HasWiki,
			HasPages:        meta.HasPages,
		},
		Owner: Owner{
			Login:     meta.Owner.Login,
			Type:      meta.Owner.Type,
			AvatarURL: meta.Owner.AvatarURL,
		},
	}
}
