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

type MappingStore struct {
	db *gorm.DB
}

func NewMappingStore(db *gorm.DB) *MappingStore {
	return &MappingStore{db: db}
}

func (s *MappingStore) Get(ctx context.Context, id string) (*models.ExternalProjectMapping, error) {
	var m models.ExternalProjectMapping
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *MappingStore) ListByIntegration(ctx context.Context, integrationID string) ([]models.ExternalProjectMapping, error) {
	var ms []models.ExternalProjectMapping
	err := s.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("external_project_key").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("listing mappings for integration %s: %w", integrationID, err)
	}
	return ms, nil
}

func (s *MappingStore) Upsert(ctx context.Context, m *models.ExternalProjectMapping) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "integration_id"}, {Name: "external_project_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_project_id", "external_name", "issue_types", "sync_enabled", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upserting mapping %s/%s: %w", m.IntegrationID, m.ExternalProjectKey, err)
	}

	var stored models.ExternalProjectMapping
	err = s.db.WithContext(ctx).
		Where("integration_id = ? AND external_project_key = ?", m.IntegrationID, m.ExternalProjectKey).
		First(&stored).Error
	if err != nil {
		return translate(err)
	}
	*m = stored
	return nil
}
