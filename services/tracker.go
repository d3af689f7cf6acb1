package services

import (
	"context"

	"jira-sync/jira"
	"jira-sync/models"
)

// IssueTracker is the part of the tracker client the services depend on.
// *jira.Client satisfies it.
type IssueTracker interface {
	GetProjects(ctx context.Context) ([]jira.Project, error)
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
	SearchIssues(ctx context.Context, jql string, maxResults int) (*jira.SearchResponse, error)
	CreateIssue(ctx context.Context, in jira.CreateIssueInput) (*jira.CreatedIssue, error)
	UpdateIssue(ctx context.Context, key string, upd jira.IssueUpdate) error
	TransitionIssue(ctx context.Context, key, targetStatus string) error
	AddComment(ctx context.Context, key, text string) (*jira.Comment, error)
	GetIssueTypes(ctx context.Context, projectKey string) ([]jira.IssueType, error)
	CreateWebhook(ctx context.Context, callbackURL string, events []string) (*jira.WebhookRegistration, error)
}

// ClientFactory builds a tracker client from stored integration credentials.
type ClientFactory func(in *models.Integration) (IssueTracker, error)

// NewClientFactory returns a factory producing *jira.Client instances.
func NewClientFactory(opts ...jira.Option) ClientFactory {
	return func(in *models.Integration) (IssueTracker, error) {
		return jira.NewClientForIntegration(in, opts...)
	}
}
