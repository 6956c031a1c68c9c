// Package tracker fetches task descriptions from the GitHub issue
// tracker. Authentication is either a personal access token or a GitHub
// App installation token.
package tracker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// IssueRecord is the task description a pipeline run works from.
type IssueRecord struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	CreatedAt time.Time
}

// Query returns the text used to score context files for relevance.
func (r *IssueRecord) Query() string {
	return strings.TrimSpace(r.Title + "\n" + r.Body)
}

// Client fetches issues from one repository.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// NewClient creates a tracker client for owner/repo. baseURL overrides
// the API endpoint when non-empty (tests); it must end with a slash
// when set.
func NewClient(repo string, auth AuthProvider, baseURL string) (*Client, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	token, err := auth.Token(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	gh := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL: %w", err)
		}
		gh.BaseURL = base
	}

	return &Client{gh: gh, owner: owner, repo: name}, nil
}

// FetchIssue retrieves one issue by number.
func (c *Client) FetchIssue(ctx context.Context, number int) (*IssueRecord, error) {
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}

	record := &IssueRecord{
		Number:    number,
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		CreatedAt: issue.GetCreatedAt().Time,
	}
	for _, label := range issue.Labels {
		record.Labels = append(record.Labels, label.GetName())
	}
	return record, nil
}
