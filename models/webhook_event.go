package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is an append-only record of one inbound delivery.
type WebhookEvent struct {
	ID            string         `gorm:"primaryKey" json:"id"`
	IntegrationID string         `gorm:"index:idx_event_issue" json:"integration_id"`
	EventType     string         `json:"event_type"`
	IssueKey      string         `gorm:"index:idx_event_issue" json:"issue_key"`
	IssueID       string         `json:"issue_id"`
	Payload       datatypes.JSON `json:"payload"`
	Processed     bool           `gorm:"index" json:"processed"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}
