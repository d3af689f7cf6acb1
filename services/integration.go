package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
)

// WebhookEvents are the tracker events registered for every integration.
var WebhookEvents = []string{"jira:issue_created", "jira:issue_updated", "jira:issue_deleted"}

// ConnectionTester runs the connection handshake. *ConnectionValidator satisfies it.
type ConnectionTester interface {
	TestConnection(ctx context.Context, cfg ConnectionConfig) ConnectionResult
}

// MappingRequest maps a tracker project into an integration.
type MappingRequest struct {
	ProjectKey  string            `json:"projectKey"`
	IssueTypes  map[string]string `json:"issueTypes,omitempty"` // entity type -> issue type name
	SyncEnabled *bool             `json:"syncEnabled,omitempty"`
}

// IntegrationService manages a project's tracker integration and its mappings.
type IntegrationService struct {
	tester        ConnectionTester
	integrations  repository.IntegrationRepository
	mappings      repository.MappingRepository
	clients       ClientFactory
	publicBaseURL string
}

func NewIntegrationService(
	tester ConnectionTester,
	integrations repository.IntegrationRepository,
	mappings repository.MappingRepository,
	clients ClientFactory,
	publicBaseURL string,
) *IntegrationService {
	return &IntegrationService{
		tester:        tester,
		integrations:  integrations,
		mappings:      mappings,
		clients:       clients,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Connect validates cfg and, only on success, saves it as the project's
// integration. A failed handshake returns the result and its error.
func (s *IntegrationService) Connect(ctx context.Context, projectID string, cfg ConnectionConfig) (*models.Integration, ConnectionResult, error) {
	if projectID == "" {
		return nil, ConnectionResult{}, jira.NewError(jira.CodeInvalidRequest, "project id is required")
	}
	result := s.tester.TestConnection(ctx, cfg)
	if !result.Success {
		return nil, result, result.Error
	}

	in := &models.Integration{
		ProjectID:      projectID,
		BaseURL:        result.BaseURL,
		AuthKind:       result.AuthKind,
		DeploymentType: result.JiraType,
		APIVersion:     result.APIVersion,
		WebhookSecret:  cfg.WebhookSecret,
		IsActive:       true,
		SyncEnabled:    true,
	}
	// only the credential set of the resolved kind is kept
	switch result.AuthKind {
	case models.AuthKindOAuth:
		in.AccessToken = cfg.AccessToken
	case models.AuthKindAPIToken:
		in.Email, in.APIToken = cfg.Email, cfg.APIToken
	case models.AuthKindBasic:
		in.Username, in.Password = cfg.Username, cfg.Password
	}

	// a reconnect without a secret keeps the stored one
	if in.WebhookSecret == "" {
		existing, err := s.integrations.GetByProject(ctx, projectID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, result, err
		}
		if existing != nil {
			in.WebhookSecret = existing.WebhookSecret
		}
	}

	if err := s.integrations.UpsertByProject(ctx, in); err != nil {
		return nil, result, err
	}
	log.Printf("integration saved: integration=%s project=%s url=%s type=%s", in.ID, projectID, in.BaseURL, in.DeploymentType)
	return in, result, nil
}

func (s *IntegrationService) Get(ctx context.Context, id string) (*models.Integration, error) {
	in, err := s.integrations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, jira.Errorf(jira.CodeNotFound, "integration %s not found", id)
	}
	return in, err
}

func (s *IntegrationService) SetActive(ctx context.Context, id string, active bool) (*models.Integration, error) {
	in, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.IsActive = active
	if err := s.integrations.Save(ctx, in); err != nil {
		return nil, err
	}
	log.Printf("integration active changed: integration=%s active=%t", id, active)
	return in, nil
}

func (s *IntegrationService) SetSyncEnabled(ctx context.Context, id string, enabled bool) (*models.Integration, error) {
	in, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.SyncEnabled = enabled
	if err := s.integrations.Save(ctx, in); err != nil {
		return nil, err
	}
	log.Printf("integration sync changed: integration=%s sync_enabled=%t", id, enabled)
	return in, nil
}

func (s *IntegrationService) client(ctx context.Context, id string) (*models.Integration, IssueTracker, error) {
	in, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !in.IsActive {
		return nil, nil, jira.Errorf(jira.CodeInactive, "integration %s is inactive", id)
	}
	c, err := s.clients(in)
	if err != nil {
		return nil, nil, err
	}
	return in, c, nil
}

// DiscoverProjects lists the tracker projects the integration can see.
func (s *IntegrationService) DiscoverProjects(ctx context.Context, id string) ([]jira.Project, error) {
	_, c, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.GetProjects(ctx)
}

func (s *IntegrationService) ListMappings(ctx context.Context, id string) ([]models.ExternalProjectMapping, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.mappings.ListByIntegration(ctx, id)
}

// MapProject checks the project key and every mapped issue type against the
// tracker, then upserts the mapping.
func (s *IntegrationService) MapProject(ctx context.Context, id string, req MappingRequest) (*models.ExternalProjectMapping, error) {
	if req.ProjectKey == "" {
		return nil, jira.NewError(jira.CodeInvalidRequest, "project key is required")
	}
	in, c, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}

	projects, err := c.GetProjects(ctx)
	if err != nil {
		return nil, err
	}
	var project *jira.Project
	for i := range projects {
		if strings.EqualFold(projects[i].Key, req.ProjectKey) {
			project = &projects[i]
			break
		}
	}
	if project == nil {
		return nil, jira.Errorf(jira.CodeNotFound, "project %s is not visible to this integration", req.ProjectKey)
	}

	issueTypes := datatypes.JSONMap{}
	if len(req.IssueTypes) > 0 {
		available, err := c.GetIssueTypes(ctx, project.Key)
		if err != nil {
			return nil, err
		}
		byName := map[string]string{}
		var names []string
		for _, it := range available {
			byName[strings.ToLower(it.Name)] = it.Name
			names = append(names, it.Name)
		}
		sort.Strings(names)

		for rawType, typeName := range req.IssueTypes {
			entityType, err := models.ParseEntityType(rawType)
			if err != nil {
				return nil, jira.Errorf(jira.CodeInvalidRequest, "unknown entity type %q", rawType)
			}
			canonical, ok := byName[strings.ToLower(typeName)]
			if !ok {
				e := jira.Errorf(jira.CodeInvalidRequest, "issue type %q does not exist in project %s", typeName, project.Key)
				e.Details = "available issue types: " + strings.Join(names, ", ")
				return nil, e
			}
			issueTypes[string(entityType)] = canonical
		}
	}

	m := &models.ExternalProjectMapping{
		IntegrationID:      in.ID,
		ExternalProjectKey: project.Key,
		ExternalProjectID:  project.ID,
		ExternalName:       project.Name,
		IssueTypes:         issueTypes,
		SyncEnabled:        req.SyncEnabled == nil || *req.SyncEnabled,
	}
	if err := s.mappings.Upsert(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("project mapped: integration=%s project=%s mapping=%s", in.ID, project.Key, m.ID)
	return m, nil
}

// SearchIssues runs a JQL search for the link picker.
func (s *IntegrationService) SearchIssues(ctx context.Context, id, jql string, maxResults int) (*jira.SearchResponse, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, jira.NewError(jira.CodeInvalidRequest, "query is required")
	}
	switch {
	case maxResults <= 0:
		maxResults = 20
	case maxResults > 100:
		maxResults = 100
	}
	_, c, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.SearchIssues(ctx, jql, maxResults)
}

// WebhookURL is the callback the tracker should deliver events for id to.
func (s *IntegrationService) WebhookURL(id string) string {
	return s.publicBaseURL + "/webhooks/jira/" + id
}

// RegisterWebhook registers the issue event webhook for the integration.
func (s *IntegrationService) RegisterWebhook(ctx context.Context, id string) (*jira.WebhookRegistration, string, error) {
	if s.publicBaseURL == "" {
		return nil, "", jira.NewError(jira.CodeInvalidRequest, "PUBLIC_BASE_URL is not configured")
	}
	_, c, err := s.client(ctx, id)
	if err != nil {
		return nil, "", err
	}
	callback := s.WebhookURL(id)
	reg, err := c.CreateWebhook(ctx, callback, WebhookEvents)
	if err != nil {
		return nil, "", err
	}
	log.Printf("webhook registered: integration=%s url=%s", id, callback)
	return reg, callback, nil
}
