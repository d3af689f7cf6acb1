package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
)

type stubTester struct {
	result ConnectionResult
	calls  int
}

func (s *stubTester) TestConnection(ctx context.Context, cfg ConnectionConfig) ConnectionResult {
	s.calls++
	return s.result
}

func newTestIntegrationService(env *testEnv, tester ConnectionTester, publicURL string) *IntegrationService {
	return NewIntegrationService(
		tester,
		repository.NewIntegrationStore(env.db),
		repository.NewMappingStore(env.db),
		env.tracker.factory(),
		publicURL,
	)
}

func TestIntegrationService_ConnectSavesOnlyResolvedCredentials(t *testing.T) {
	env := newTestEnv(t)
	tester := &stubTester{result: ConnectionResult{
		Success:    true,
		BaseURL:    "https://acme.atlassian.net",
		JiraType:   models.DeploymentCloud,
		APIVersion: "3",
		AuthKind:   models.AuthKindAPIToken,
	}}
	svc := newTestIntegrationService(env, tester, "")

	in, result, err := svc.Connect(context.Background(), "proj-1", ConnectionConfig{
		URL:           "acme.atlassian.net",
		Credentials:   jira.Credentials{Email: "qa@example.com", APIToken: "tok", Username: "stray", Password: "stray"},
		WebhookSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "qa@example.com", in.Email)
	assert.Equal(t, "tok", in.APIToken)
	assert.Empty(t, in.Username)
	assert.Empty(t, in.Password)
	assert.Equal(t, "s3cret", in.WebhookSecret)
	assert.True(t, in.IsActive)
	assert.Equal(t, "3", in.APIVersion)

	// reconnecting the same project keeps one integration
	again, _, err := svc.Connect(context.Background(), "proj-1", ConnectionConfig{
		URL:         "acme.atlassian.net",
		Credentials: jira.Credentials{Email: "qa@example.com", APIToken: "tok2"},
	})
	require.NoError(t, err)
	assert.Equal(t, in.ID, again.ID)
	var n int64
	env.db.Model(&models.Integration{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestIntegrationService_ReconnectKeepsWebhookSecret(t *testing.T) {
	env := newTestEnv(t)
	tester := &stubTester{result: ConnectionResult{
		Success:  true,
		BaseURL:  "https://acme.atlassian.net",
		JiraType: models.DeploymentCloud,
		AuthKind: models.AuthKindAPIToken,
	}}
	svc := newTestIntegrationService(env, tester, "")
	ctx := context.Background()
	creds := jira.Credentials{Email: "qa@example.com", APIToken: "tok"}

	_, _, err := svc.Connect(ctx, "proj-1", ConnectionConfig{URL: "acme.atlassian.net", Credentials: creds, WebhookSecret: "s3cret"})
	require.NoError(t, err)

	again, _, err := svc.Connect(ctx, "proj-1", ConnectionConfig{URL: "acme.atlassian.net", Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", again.WebhookSecret)

	var stored models.Integration
	require.NoError(t, env.db.Where("project_id = ?", "proj-1").First(&stored).Error)
	assert.Equal(t, "s3cret", stored.WebhookSecret)

	// an explicit new secret still replaces it
	rotated, _, err := svc.Connect(ctx, "proj-1", ConnectionConfig{URL: "acme.atlassian.net", Credentials: creds, WebhookSecret: "rotated"})
	require.NoError(t, err)
	assert.Equal(t, "rotated", rotated.WebhookSecret)
}

func TestIntegrationService_ConnectFailureSavesNothing(t *testing.T) {
	env := newTestEnv(t)
	failure := jira.NewError(jira.CodeWrongAuthMethodCloud, "cloud instances do not accept username and password")
	svc := newTestIntegrationService(env, &stubTester{result: ConnectionResult{Error: failure}}, "")

	in, result, err := svc.Connect(context.Background(), "proj-1", ConnectionConfig{URL: "acme.atlassian.net"})
	assert.Nil(t, in)
	assert.False(t, result.Success)
	assert.True(t, jira.IsCode(err, jira.CodeWrongAuthMethodCloud))

	var n int64
	env.db.Model(&models.Integration{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestIntegrationService_Toggles(t *testing.T) {
	env := newTestEnv(t)
	env.seedIntegration(t, "int-1", true, true)
	svc := newTestIntegrationService(env, &stubTester{}, "")
	ctx := context.Background()

	in, err := svc.SetSyncEnabled(ctx, "int-1", false)
	require.NoError(t, err)
	assert.False(t, in.SyncEnabled)

	in, err = svc.SetActive(ctx, "int-1", false)
	require.NoError(t, err)
	assert.False(t, in.IsActive)

	_, err = svc.DiscoverProjects(ctx, "int-1")
	assert.True(t, jira.IsCode(err, jira.CodeInactive))

	_, err = svc.SetActive(ctx, "missing", true)
	assert.True(t, jira.IsCode(err, jira.CodeNotFound))
}

func TestIntegrationService_MapProject(t *testing.T) {
	env := newTestEnv(t)
	env.seedIntegration(t, "int-1", true, true)
	env.tracker.projects = []jira.Project{{ID: "100", Key: "QA", Name: "Quality"}}
	env.tracker.issueTypes["QA"] = []jira.IssueType{{Name: "Bug"}, {Name: "Test"}, {Name: "Epic"}}
	svc := newTestIntegrationService(env, &stubTester{}, "")
	ctx := context.Background()

	m, err := svc.MapProject(ctx, "int-1", MappingRequest{
		ProjectKey: "qa",
		IssueTypes: map[string]string{"case": "test", "DEFECT": "Bug"},
	})
	require.NoError(t, err)
	assert.Equal(t, "QA", m.ExternalProjectKey)
	assert.Equal(t, "Quality", m.ExternalName)
	assert.Equal(t, "Test", m.IssueTypeFor(models.EntityTypeCase))
	assert.Equal(t, "Bug", m.IssueTypeFor(models.EntityTypeDefect))
	assert.Equal(t, "Story", m.IssueTypeFor(models.EntityTypePlan))
	assert.True(t, m.SyncEnabled)

	_, err = svc.MapProject(ctx, "int-1", MappingRequest{ProjectKey: "NOPE"})
	assert.True(t, jira.IsCode(err, jira.CodeNotFound))

	_, err = svc.MapProject(ctx, "int-1", MappingRequest{ProjectKey: "QA", IssueTypes: map[string]string{"CASE": "Spike"}})
	require.Error(t, err)
	e, ok := jira.AsError(err)
	require.True(t, ok)
	assert.Equal(t, jira.CodeInvalidRequest, e.Code)
	assert.Contains(t, e.Details, "Bug, Epic, Test")

	mappings, err := svc.ListMappings(ctx, "int-1")
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestIntegrationService_SearchAndWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.seedIntegration(t, "int-1", true, true)
	env.tracker.putIssue("QA-1", "Login", "", "To Do")
	ctx := context.Background()

	svc := newTestIntegrationService(env, &stubTester{}, "https://tms.example.com/")
	res, err := svc.SearchIssues(ctx, "int-1", "project = QA", 500)
	require.NoError(t, err)
	assert.Equal(t, 100, res.MaxResults)
	assert.Len(t, res.Issues, 1)

	_, err = svc.SearchIssues(ctx, "int-1", "  ", 10)
	assert.True(t, jira.IsCode(err, jira.CodeInvalidRequest))

	_, callback, err := svc.RegisterWebhook(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, "https://tms.example.com/webhooks/jira/int-1", callback)
	assert.Equal(t, []string{callback}, env.tracker.webhooks)

	unconfigured := newTestIntegrationService(env, &stubTester{}, "")
	_, _, err = unconfigured.RegisterWebhook(ctx, "int-1")
	assert.True(t, jira.IsCode(err, jira.CodeInvalidRequest))
}
