package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("fail to migrate test db: %v", err)
	}
	return db
}

// fakeTracker is an in-memory IssueTracker that counts calls.
type fakeTracker struct {
	mu         sync.Mutex
	issues     map[string]*jira.Issue
	projects   []jira.Project
	issueTypes map[string][]jira.IssueType
	calls      map[string]int

	updateErr     error
	transitionErr error
	commentErr    error
	getErr        error

	updates  map[string]jira.IssueUpdate
	comments map[string][]string
	created  []jira.CreateIssueInput
	webhooks []string
	nextID   int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:     map[string]*jira.Issue{},
		issueTypes: map[string][]jira.IssueType{},
		calls:      map[string]int{},
		updates:    map[string]jira.IssueUpdate{},
		comments:   map[string][]string{},
		nextID:     100,
	}
}

func (f *fakeTracker) factory() ClientFactory {
	return func(*models.Integration) (IssueTracker, error) { return f, nil }
}

func (f *fakeTracker) putIssue(key, summary, description, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[key] = &jira.Issue{
		ID:  fmt.Sprintf("1%04d", len(f.issues)+1),
		Key: key,
		Fields: jira.IssueFields{
			Summary:     summary,
			Description: jira.Description(description),
			Status:      jira.Status{Name: status},
			IssueType:   jira.IssueType{Name: "Task"},
		},
	}
}

func (f *fakeTracker) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTracker) outboundCalls() int {
	return f.count("UpdateIssue") + f.count("TransitionIssue") + f.count("AddComment") + f.count("CreateIssue")
}

func (f *fakeTracker) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeTracker) GetProjects(ctx context.Context) ([]jira.Project, error) {
	f.record("GetProjects")
	return f.projects, nil
}

func (f *fakeTracker) GetIssue(ctx context.Context, key string) (*jira.Issue, error) {
	f.record("GetIssue")
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[strings.ToUpper(key)]
	if !ok {
		return nil, jira.Errorf(jira.CodeNotFound, "issue %s not found", key)
	}
	cp := *issue
	return &cp, nil
}

func (f *fakeTracker) SearchIssues(ctx context.Context, jql string, maxResults int) (*jira.SearchResponse, error) {
	f.record("SearchIssues")
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &jira.SearchResponse{MaxResults: maxResults}
	for _, issue := range f.issues {
		resp.Issues = append(resp.Issues, *issue)
	}
	resp.Total = len(resp.Issues)
	return resp, nil
}

func (f *fakeTracker) CreateIssue(ctx context.Context, in jira.CreateIssueInput) (*jira.CreatedIssue, error) {
	f.record("CreateIssue")
	f.mu.Lock()
	f.nextID++
	key := fmt.Sprintf("%s-%d", in.ProjectKey, f.nextID)
	f.created = append(f.created, in)
	f.mu.Unlock()
	f.putIssue(key, in.Summary, in.Description, "To Do")
	return &jira.CreatedIssue{ID: fmt.Sprint(f.nextID), Key: key}, nil
}

func (f *fakeTracker) UpdateIssue(ctx context.Context, key string, upd jira.IssueUpdate) error {
	f.record("UpdateIssue")
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[key] = upd
	if issue, ok := f.issues[key]; ok {
		if upd.Summary != nil {
			issue.Fields.Summary = *upd.Summary
		}
		if upd.Description != nil {
			issue.Fields.Description = jira.Description(*upd.Description)
		}
	}
	return nil
}

func (f *fakeTracker) TransitionIssue(ctx context.Context, key, targetStatus string) error {
	f.record("TransitionIssue")
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[key]; ok {
		issue.Fields.Status.Name = targetStatus
	}
	return nil
}

func (f *fakeTracker) AddComment(ctx context.Context, key, text string) (*jira.Comment, error) {
	f.record("AddComment")
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[key] = append(f.comments[key], text)
	return &jira.Comment{ID: fmt.Sprint(len(f.comments[key]))}, nil
}

func (f *fakeTracker) GetIssueTypes(ctx context.Context, projectKey string) ([]jira.IssueType, error) {
	f.record("GetIssueTypes")
	return f.issueTypes[projectKey], nil
}

func (f *fakeTracker) CreateWebhook(ctx context.Context, callbackURL string, events []string) (*jira.WebhookRegistration, error) {
	f.record("CreateWebhook")
	f.mu.Lock()
	f.webhooks = append(f.webhooks, callbackURL)
	f.mu.Unlock()
	return &jira.WebhookRegistration{}, nil
}

type testEnv struct {
	db      *gorm.DB
	tracker *fakeTracker
	engine  *SyncEngine
	links   *repository.LinkStore
	events  *repository.WebhookEventStore
}

func newTestEnv(t *testing.T) *testEnv {
	db := setupTestDB(t)
	tracker := newFakeTracker()
	links := repository.NewLinkStore(db)
	engine := NewSyncEngine(
		repository.NewIntegrationStore(db),
		repository.NewMappingStore(db),
		links,
		repository.NewEntityStore(db),
		tracker.factory(),
	)
	return &testEnv{
		db:      db,
		tracker: tracker,
		engine:  engine,
		links:   links,
		events:  repository.NewWebhookEventStore(db),
	}
}

func (env *testEnv) seedIntegration(t *testing.T, id string, active, syncEnabled bool) *models.Integration {
	in := &models.Integration{
		ID:          id,
		ProjectID:   "proj-" + id,
		BaseURL:     "https://acme.atlassian.net",
		AuthKind:    models.AuthKindAPIToken,
		APIVersion:  "3",
		Email:       "qa@example.com",
		APIToken:    "tok",
		IsActive:    active,
		SyncEnabled: syncEnabled,
	}
	require.NoError(t, env.db.Create(in).Error)
	return in
}

func (env *testEnv) seedCase(t *testing.T, id, title, description string) {
	require.NoError(t, env.db.Create(&models.TestCase{ID: id, ProjectID: "proj-1", Title: title, Description: description}).Error)
}

func (env *testEnv) seedLink(t *testing.T, integrationID, issueKey, entityID string, direction models.SyncDirection) *models.IssueLink {
	link := &models.IssueLink{
		IntegrationID: integrationID,
		IssueKey:      issueKey,
		Summary:       "Cached summary",
		Status:        "To Do",
		EntityType:    models.EntityTypeCase,
		EntityID:      entityID,
		SyncStatus:    models.SyncStatusSynced,
		SyncDirection: direction,
	}
	require.NoError(t, env.links.Upsert(context.Background(), link))
	return link
}

func (env *testEnv) reloadLink(t *testing.T, id string) models.IssueLink {
	var link models.IssueLink
	require.NoError(t, env.db.First(&link, "id = ?", id).Error)
	return link
}

func (env *testEnv) caseTitle(t *testing.T, id string) string {
	var c models.TestCase
	require.NoError(t, env.db.First(&c, "id = ?", id).Error)
	return c.Title
}
