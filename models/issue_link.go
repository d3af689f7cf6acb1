package models

import "time"

// IssueLink associates one local entity with one external issue.
// (IssueKey, EntityType, EntityID) is the natural key used for upserts.
type IssueLink struct {
	ID            string        `gorm:"primaryKey" json:"id"`
	IntegrationID string        `gorm:"index" json:"integration_id"`
	MappingID     *string       `json:"mapping_id,omitempty"`
	IssueKey      string        `gorm:"index:idx_link_natural,unique:true" json:"issue_key"`
	IssueID       string        `json:"issue_id"`
	IssueType     string        `json:"issue_type"`
	Summary       string        `json:"summary"`
	Status        string        `json:"status"` // external workflow status
	EntityType    EntityType    `gorm:"index:idx_link_natural,unique:true;index:idx_link_entity" json:"entity_type"`
	EntityID      string        `gorm:"index:idx_link_natural,unique:true;index:idx_link_entity" json:"entity_id"`
	SyncStatus    SyncStatus    `json:"sync_status"`
	SyncDirection SyncDirection `json:"sync_direction"`
	LastSyncedAt  *time.Time    `json:"last_synced_at,omitempty"`
	// LastFailedAction is the operation that left the link FAILED
	// (push, pull, comment or transition); empty once it syncs again.
	LastFailedAction string    `json:"last_failed_action,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
