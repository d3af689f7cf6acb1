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

type IntegrationStore struct {
	db *gorm.DB
}

func NewIntegrationStore(db *gorm.DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

func (s *IntegrationStore) Get(ctx context.Context, id string) (*models.Integration, error) {
	var in models.Integration
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&in).Error; err != nil {
		return nil, translate(err)
	}
	return &in, nil
}

func (s *IntegrationStore) GetByProject(ctx context.Context, projectID string) (*models.Integration, error) {
	var in models.Integration
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&in).Error; err != nil {
		return nil, translate(err)
	}
	return &in, nil
}

func (s *IntegrationStore) UpsertByProject(ctx context.Context, in *models.Integration) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_url", "auth_kind", "deployment_type", "api_version",
			"access_token", "email", "api_token", "username", "password",
			"webhook_secret", "is_active", "sync_enabled", "updated_at",
		}),
	}).Create(in).Error
	if err != nil {
		return fmt.Errorf("upserting integration for project %s: %w", in.ProjectID, err)
	}

	stored, err := s.GetByProject(ctx, in.ProjectID)
	if err != nil {
		return err
	}
	*in = *stored
	return nil
}

func (s *IntegrationStore) Save(ctx context.Context, in *models.Integration) error {
	in.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(in).Error; err != nil {
		return fmt.Errorf("saving integration %s: %w", in.ID, err)
	}
	return nil
}

func (s *IntegrationStore) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Integration{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
	if err != nil {
		return fmt.Errorf("touching integration %s: %w", id, err)
	}
	return nil
}
