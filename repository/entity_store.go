package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"jira-sync/models"
)

// EntityStore reads and writes title/description of suites, cases, plans and defects.
type EntityStore struct {
	db *gorm.DB
}

func NewEntityStore(db *gorm.DB) *EntityStore {
	return &EntityStore{db: db}
}

func tableModel(t models.EntityType) (interface{}, error) {
	switch t {
	case models.EntityTypeSuite:
		return &models.TestSuite{}, nil
	case models.EntityTypeCase:
		return &models.TestCase{}, nil
	case models.EntityTypePlan:
		return &models.TestPlan{}, nil
	case models.EntityTypeDefect:
		return &models.Defect{}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", t)
}

func (s *EntityStore) Get(ctx context.Context, entityType models.EntityType, id string) (*models.EntitySnapshot, error) {
	m, err := tableModel(entityType)
	if err != nil {
		return nil, err
	}
	var snap models.EntitySnapshot
	res := s.db.WithContext(ctx).Model(m).
		Select("title", "description").
		Where("id = ?", id).
		Limit(1).
		Scan(&snap)
	if res.Error != nil {
		return nil, fmt.Errorf("reading %s %s: %w", entityType, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (s *EntityStore) Update(ctx context.Context, entityType models.EntityType, id string, snap models.EntitySnapshot) error {
	m, err := tableModel(entityType)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(m).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":       snap.Title,
			"description": snap.Description,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating %s %s: %w", entityType, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
