package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jira-sync/models"
)

// LinkStore implements LinkRepository on gorm.
type LinkStore struct {
	db *gorm.DB
}

func NewLinkStore(db *gorm.DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) FindByNaturalKey(ctx context.Context, issueKey string, entityType models.EntityType, entityID string) (*models.IssueLink, error) {
	var link models.IssueLink
	err := s.db.WithContext(ctx).
		Where("issue_key = ? AND entity_type = ? AND entity_id = ?", issueKey, entityType, entityID).
		First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (s *LinkStore) FindByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.IssueLink, error) {
	var links []models.IssueLink
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("querying links for %s %s: %w", entityType, entityID, err)
	}
	return links, nil
}

func (s *LinkStore) FindByIssueKey(ctx context.Context, issueKey string) ([]models.IssueLink, error) {
	var links []models.IssueLink
	err := s.db.WithContext(ctx).
		Where("issue_key = ?", issueKey).
		Order("created_at").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("querying links for issue %s: %w", issueKey, err)
	}
	return links, nil
}

func (s *LinkStore) FindBySyncStatus(ctx context.Context, status models.SyncStatus, limit int) ([]models.IssueLink, error) {
	var links []models.IssueLink
	q := s.db.WithContext(ctx).Where("sync_status = ?", status).Order("updated_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("querying %s links: %w", status, err)
	}
	return links, nil
}

func (s *LinkStore) Upsert(ctx context.Context, link *models.IssueLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	now := time.Now()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	// direction, mapping and entity ownership of an existing row are preserved
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "issue_key"}, {Name: "entity_type"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary", "status", "sync_status", "last_synced_at", "last_failed_action", "updated_at",
		}),
	}).Create(link).Error
	if err != nil {
		return fmt.Errorf("upserting link %s %s/%s: %w", link.IssueKey, link.EntityType, link.EntityID, err)
	}

	stored, err := s.FindByNaturalKey(ctx, link.IssueKey, link.EntityType, link.EntityID)
	if err != nil {
		return err
	}
	*link = *stored
	return nil
}

func (s *LinkStore) Save(ctx context.Context, link *models.IssueLink) error {
	link.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(link).Error; err != nil {
		return fmt.Errorf("saving link %s: %w", link.ID, err)
	}
	return nil
}

func (s *LinkStore) DeleteByNaturalKey(ctx context.Context, issueKey string, entityType models.EntityType, entityID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("issue_key = ? AND entity_type = ? AND entity_id = ?", issueKey, entityType, entityID).
		Delete(&models.IssueLink{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting link %s %s/%s: %w", issueKey, entityType, entityID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *LinkStore) DeleteByIssue(ctx context.Context, integrationID, issueKey string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("integration_id = ? AND issue_key = ?", integrationID, issueKey).
		Delete(&models.IssueLink{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting links for issue %s: %w", issueKey, res.Error)
	}
	return res.RowsAffected, nil
}
