package repository

import (
	"context"
	"errors"
	"time"

	"jira-sync/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// IntegrationRepository persists Integration rows, one per project.
type IntegrationRepository interface {
	Get(ctx context.Context, id string) (*models.Integration, error)
	GetByProject(ctx context.Context, projectID string) (*models.Integration, error)
	// UpsertByProject creates the project's integration or overwrites the existing one.
	UpsertByProject(ctx context.Context, in *models.Integration) error
	Save(ctx context.Context, in *models.Integration) error
	TouchLastSynced(ctx context.Context, id string, at time.Time) error
}

// MappingRepository persists ExternalProjectMapping rows.
type MappingRepository interface {
	Get(ctx context.Context, id string) (*models.ExternalProjectMapping, error)
	ListByIntegration(ctx context.Context, integrationID string) ([]models.ExternalProjectMapping, error)
	// Upsert is keyed by (integration id, external project key).
	Upsert(ctx context.Context, m *models.ExternalProjectMapping) error
}

// LinkRepository persists IssueLink rows keyed by (issue key, entity type, entity id).
type LinkRepository interface {
	FindByNaturalKey(ctx context.Context, issueKey string, entityType models.EntityType, entityID string) (*models.IssueLink, error)
	FindByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.IssueLink, error)
	FindByIssueKey(ctx context.Context, issueKey string) ([]models.IssueLink, error)
	FindBySyncStatus(ctx context.Context, status models.SyncStatus, limit int) ([]models.IssueLink, error)
	// Upsert inserts the link or, when the natural key exists, refreshes only the
	// cached external fields and sync state. The stored row is written back into link.
	Upsert(ctx context.Context, link *models.IssueLink) error
	Save(ctx context.Context, link *models.IssueLink) error
	DeleteByNaturalKey(ctx context.Context, issueKey string, entityType models.EntityType, entityID string) (int64, error)
	DeleteByIssue(ctx context.Context, integrationID, issueKey string) (int64, error)
}

// WebhookEventRepository persists the append-only inbound event log.
type WebhookEventRepository interface {
	Create(ctx context.Context, e *models.WebhookEvent) error
	Get(ctx context.Context, id string) (*models.WebhookEvent, error)
	// MarkProcessed flags e and any older unprocessed rows for the same
	// (integration, issue key) as processed. Already processed rows are untouched.
	MarkProcessed(ctx context.Context, e *models.WebhookEvent, errText string) (int64, error)
	ListUnprocessedBefore(ctx context.Context, before time.Time, limit int) ([]models.WebhookEvent, error)
}

// EntityRepository reads and writes the syncable content of local entities.
type EntityRepository interface {
	Get(ctx context.Context, entityType models.EntityType, id string) (*models.EntitySnapshot, error)
	Update(ctx context.Context, entityType models.EntityType, id string, snap models.EntitySnapshot) error
}
