package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"jira-sync/models"
)

type WebhookEventStore struct {
	db *gorm.DB
}

func NewWebhookEventStore(db *gorm.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Create(ctx context.Context, e *models.WebhookEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("storing webhook event %s: %w", e.EventType, err)
	}
	return nil
}

func (s *WebhookEventStore) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, e *models.WebhookEvent, errText string) (int64, error) {
	now := time.Now()
	// older events for the same issue are superseded; keyless events only mark themselves
	scope := s.db.Where("id = ?", e.ID)
	if e.IssueKey != "" {
		scope = scope.Or("integration_id = ? AND issue_key = ? AND created_at <= ?", e.IntegrationID, e.IssueKey, e.CreatedAt)
	}
	res := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("processed = ?", false).
		Where(scope).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
			"error":        errText,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("marking webhook event %s processed: %w", e.ID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *WebhookEventStore) ListUnprocessedBefore(ctx context.Context, before time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	q := s.db.WithContext(ctx).
		Where("processed = ? AND created_at < ?", false, before).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing unprocessed webhook events: %w", err)
	}
	return events, nil
}
