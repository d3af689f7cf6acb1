package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-sync/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to :memory: would see its own empty database
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		t.Fatalf("fail to migrate test db: %v", err)
	}
	return db
}

func TestIntegrationStore_UpsertByProject(t *testing.T) {
	db := setupTestDB(t)
	store := NewIntegrationStore(db)
	ctx := context.Background()

	first := &models.Integration{
		ProjectID:  "proj-1",
		BaseURL:    "https://acme.atlassian.net",
		AuthKind:   models.AuthKindAPIToken,
		APIVersion: "3",
		Email:      "qa@example.com",
		APIToken:   "tok",
		IsActive:   true,
	}
	require.NoError(t, store.UpsertByProject(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &models.Integration{
		ProjectID:  "proj-1",
		BaseURL:    "https://jira.internal.example.com",
		AuthKind:   models.AuthKindBasic,
		APIVersion: "2",
		Username:   "svc",
		Password:   "pw",
		IsActive:   true,
	}
	require.NoError(t, store.UpsertByProject(ctx, second))

	// the project keeps a single row, identified by the original id
	assert.Equal(t, first.ID, second.ID)
	var count int64
	db.Model(&models.Integration{}).Count(&count)
	assert.Equal(t, int64(1), count)

	got, err := store.GetByProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "https://jira.internal.example.com", got.BaseURL)
	assert.Equal(t, models.AuthKindBasic, got.AuthKind)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntegrationStore_TouchLastSynced(t *testing.T) {
	db := setupTestDB(t)
	store := NewIntegrationStore(db)
	ctx := context.Background()

	in := &models.Integration{ProjectID: "proj-1", BaseURL: "https://acme.atlassian.net", IsActive: true}
	require.NoError(t, store.UpsertByProject(ctx, in))
	assert.Nil(t, in.LastSyncedAt)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, store.TouchLastSynced(ctx, in.ID, at))

	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(at))
}

func TestMappingStore_Upsert(t *testing.T) {
	db := setupTestDB(t)
	store := NewMappingStore(db)
	ctx := context.Background()

	m := &models.ExternalProjectMapping{
		IntegrationID:      "int-1",
		ExternalProjectKey: "QA",
		ExternalName:       "Quality",
		IssueTypes:         datatypes.JSONMap{"CASE": "Test"},
		SyncEnabled:        true,
	}
	require.NoError(t, store.Upsert(ctx, m))
	firstID := m.ID

	again := &models.ExternalProjectMapping{
		IntegrationID:      "int-1",
		ExternalProjectKey: "QA",
		ExternalName:       "Quality Assurance",
		SyncEnabled:        true,
	}
	require.NoError(t, store.Upsert(ctx, again))
	assert.Equal(t, firstID, again.ID)
	assert.Equal(t, "Quality Assurance", again.ExternalName)

	list, err := store.ListByIntegration(ctx, "int-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLinkStore_UpsertPreservesDirection(t *testing.T) {
	db := setupTestDB(t)
	store := NewLinkStore(db)
	ctx := context.Background()

	link := &models.IssueLink{
		IntegrationID: "int-1",
		IssueKey:      "QA-1",
		Summary:       "Old summary",
		Status:        "To Do",
		EntityType:    models.EntityTypeCase,
		EntityID:      "case-1",
		SyncStatus:    models.SyncStatusSynced,
		SyncDirection: models.DirectionFromExternal,
	}
	require.NoError(t, store.Upsert(ctx, link))
	originalID := link.ID

	relink := &models.IssueLink{
		IntegrationID: "int-1",
		IssueKey:      "QA-1",
		Summary:       "New summary",
		Status:        "Done",
		EntityType:    models.EntityTypeCase,
		EntityID:      "case-1",
		SyncStatus:    models.SyncStatusSynced,
		SyncDirection: models.DirectionBidirectional,
	}
	require.NoError(t, store.Upsert(ctx, relink))

	assert.Equal(t, originalID, relink.ID)
	assert.Equal(t, "New summary", relink.Summary)
	assert.Equal(t, "Done", relink.Status)
	assert.Equal(t, models.DirectionFromExternal, relink.SyncDirection)

	links, err := store.FindByEntity(ctx, models.EntityTypeCase, "case-1")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestLinkStore_Deletes(t *testing.T) {
	db := setupTestDB(t)
	store := NewLinkStore(db)
	ctx := context.Background()

	seed := []models.IssueLink{
		{IntegrationID: "int-1", IssueKey: "QA-1", EntityType: models.EntityTypeCase, EntityID: "case-1"},
		{IntegrationID: "int-1", IssueKey: "QA-1", EntityType: models.EntityTypeSuite, EntityID: "suite-1"},
		{IntegrationID: "int-2", IssueKey: "QA-1", EntityType: models.EntityTypeCase, EntityID: "case-2"},
		{IntegrationID: "int-1", IssueKey: "QA-2", EntityType: models.EntityTypeCase, EntityID: "case-1"},
	}
	for i := range seed {
		require.NoError(t, store.Upsert(ctx, &seed[i]))
	}

	n, err := store.DeleteByNaturalKey(ctx, "QA-2", models.EntityTypeCase, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.DeleteByNaturalKey(ctx, "QA-2", models.EntityTypeCase, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.DeleteByIssue(ctx, "int-1", "QA-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := store.FindByIssueKey(ctx, "QA-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "int-2", remaining[0].IntegrationID)
}

func TestLinkStore_FindBySyncStatus(t *testing.T) {
	db := setupTestDB(t)
	store := NewLinkStore(db)
	ctx := context.Background()

	for i, status := range []models.SyncStatus{models.SyncStatusFailed, models.SyncStatusSynced, models.SyncStatusFailed} {
		link := &models.IssueLink{
			IntegrationID: "int-1",
			IssueKey:      "QA-1",
			EntityType:    models.EntityTypeCase,
			EntityID:      []string{"a", "b", "c"}[i],
			SyncStatus:    status,
		}
		require.NoError(t, store.Upsert(ctx, link))
	}

	failed, err := store.FindBySyncStatus(ctx, models.SyncStatusFailed, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	limited, err := store.FindBySyncStatus(ctx, models.SyncStatusFailed, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestWebhookEventStore_MarkProcessed(t *testing.T) {
	db := setupTestDB(t)
	store := NewWebhookEventStore(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	older := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-1", EventType: "issue_updated", CreatedAt: base}
	current := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-1", EventType: "issue_updated", CreatedAt: base.Add(time.Minute)}
	newer := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-1", EventType: "issue_updated", CreatedAt: base.Add(2 * time.Minute)}
	otherIssue := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-2", EventType: "issue_updated", CreatedAt: base}
	for _, e := range []*models.WebhookEvent{older, current, newer, otherIssue} {
		require.NoError(t, store.Create(ctx, e))
	}

	n, err := store.MarkProcessed(ctx, current, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tc := range []struct {
		event     *models.WebhookEvent
		processed bool
	}{
		{older, true},
		{current, true},
		{newer, false},
		{otherIssue, false},
	} {
		got, err := store.Get(ctx, tc.event.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.processed, got.Processed, "event created at %s issue %s", tc.event.CreatedAt, tc.event.IssueKey)
	}

	// processed rows are immutable
	n, err = store.MarkProcessed(ctx, current, "late failure")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	got, err := store.Get(ctx, current.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestWebhookEventStore_MarkProcessedWithoutIssueKey(t *testing.T) {
	db := setupTestDB(t)
	store := NewWebhookEventStore(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	earlier := &models.WebhookEvent{IntegrationID: "int-1", EventType: "comment_created", CreatedAt: base}
	current := &models.WebhookEvent{IntegrationID: "int-1", EventType: "worklog_updated", CreatedAt: base.Add(time.Minute)}
	for _, e := range []*models.WebhookEvent{earlier, current} {
		require.NoError(t, store.Create(ctx, e))
	}

	n, err := store.MarkProcessed(ctx, current, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(ctx, earlier.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
	got, err = store.Get(ctx, current.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
}

func TestWebhookEventStore_ListUnprocessedBefore(t *testing.T) {
	db := setupTestDB(t)
	store := NewWebhookEventStore(db)
	ctx := context.Background()

	now := time.Now()
	stale := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-1", CreatedAt: now.Add(-10 * time.Minute)}
	fresh := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-2", CreatedAt: now}
	done := &models.WebhookEvent{IntegrationID: "int-1", IssueKey: "QA-3", CreatedAt: now.Add(-10 * time.Minute), Processed: true}
	for _, e := range []*models.WebhookEvent{stale, fresh, done} {
		require.NoError(t, store.Create(ctx, e))
	}

	events, err := store.ListUnprocessedBefore(ctx, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, stale.ID, events[0].ID)
}

func TestEntityStore_GetAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	store := NewEntityStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.TestCase{ID: "case-1", ProjectID: "proj-1", Title: "Login", Description: "steps"}).Error)
	require.NoError(t, db.Create(&models.Defect{ID: "def-1", ProjectID: "proj-1", Title: "Crash"}).Error)

	snap, err := store.Get(ctx, models.EntityTypeCase, "case-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntitySnapshot{Title: "Login", Description: "steps"}, *snap)

	require.NoError(t, store.Update(ctx, models.EntityTypeDefect, "def-1", models.EntitySnapshot{Title: "Crash on start", Description: "trace"}))
	snap, err = store.Get(ctx, models.EntityTypeDefect, "def-1")
	require.NoError(t, err)
	assert.Equal(t, "Crash on start", snap.Title)

	_, err = store.Get(ctx, models.EntityTypePlan, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(ctx, models.EntityTypeSuite, "missing", models.EntitySnapshot{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, models.EntityType("WIDGET"), "x")
	assert.Error(t, err)
}
