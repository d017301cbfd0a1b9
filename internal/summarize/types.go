package summarize

type UserProfile struct {
	Type               string             `json:"type"`
	Username           string             `json:"username"`
	Name               *string            `json:"name,omitempty"`
	Bio                *string            `json:"bio,omitempty"`
	Summary            string             `json:"summary"`
	Stats              UserStats          `json:"stats"`
	RecentRepositories []RecentRepository `json:"recentRepositories"`
}

type UserStats struct {
	PublicRepos int     `json:"publicRepos"`
	Followers   int     `json:"followers"`
	Following   int     `json:"following"`
	Location    *string `json:"location"`
	Company     *string `json:"company"`
	Blog        *string `json:"blog"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type RecentRepository struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Language    *string `json:"language"`
	Stars       int     `json:"stars"`
	Forks       int     `json:"forks"`
	UpdatedAt   string  `json:"updatedAt"`
}

type Repository struct {
	Type          string   `json:"type"`
	Repository    string   `json:"repository"`
	URL           string   `json:"url"`
	Name          string   `json:"name"`
	Description   *string  `json:"description"`
	Summary       string   `json:"summary"`
	CoolFacts     []string `json:"cool_facts"`
	ReadmeContent *string  `json:"readmeContent,omitempty"`
	Insights      Insights `json:"insights"`
	Owner         Owner    `json:"owner"`
}

type Insights struct {
	PrimaryLanguage *string  `json:"primaryLanguage"`
	Languages       []string `json:"languages"`
	Topics          []string `json:"topics"`
	LastUpdated     string   `json:"lastUpdated"`
	CreatedAt       string   `json:"createdAt"`
	Stars           int      `json:"stars"`
	Forks           int      `json:"forks"`
	Issues          int      `json:"issues"`
	Size            int      `json:"size"`
	DefaultBranch   string   `json:"defaultBranch"`
	IsPrivate       bool     `json:"isPrivate"`
	HasWiki         bool     `json:"hasWiki"`
	HasPages        bool     `json:"hasPages"`
}

type Owner struct {
	Login     string `json:"login"`
	Type      string `json:"type"`
	AvatarURL string `json:"avatarUrl"`
}

// RepositoryFailure is returned when the repository metadata could not be fetched.
type RepositoryFailure struct {
	Type       string `json:"type"`
	Repository string `json:"repository"`
	Summary    string `json:"summary"`
	Error      string `json:"error"`
}
