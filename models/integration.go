package models

import (
	"time"

	"gorm.io/datatypes"
)

// Integration is a project's connection to one issue tracker instance.
type Integration struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	ProjectID      string         `gorm:"uniqueIndex" json:"project_id"` // one integration per project
	BaseURL        string         `json:"base_url"`                      // normalized
	AuthKind       AuthKind       `json:"auth_kind"`
	DeploymentType DeploymentType `json:"deployment_type"`
	APIVersion     string         `json:"api_version"`

	// exactly one credential set is populated, according to AuthKind
	AccessToken string `json:"-"`
	Email       string `json:"email,omitempty"`
	APIToken    string `json:"-"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"-"`

	WebhookSecret string `json:"-"`

	IsActive     bool       `json:"is_active"`
	SyncEnabled  bool       `json:"sync_enabled"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ExternalProjectMapping binds a tracker project to an integration.
type ExternalProjectMapping struct {
	ID                 string            `gorm:"primaryKey" json:"id"`
	IntegrationID      string            `gorm:"index:idx_mapping_project,unique:true" json:"integration_id"`
	ExternalProjectKey string            `gorm:"index:idx_mapping_project,unique:true" json:"external_project_key"`
	ExternalProjectID  string            `json:"external_project_id"`
	ExternalName       string            `json:"external_name"`
	IssueTypes         datatypes.JSONMap `json:"issue_types"` // EntityType -> issue type name
	SyncEnabled        bool              `json:"sync_enabled"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

var defaultIssueTypes = map[EntityType]string{
	EntityTypeSuite:  "Epic",
	EntityTypeCase:   "Task",
	EntityTypePlan:   "Story",
	EntityTypeDefect: "Bug",
}

// IssueTypeFor returns the mapped issue type name for a local entity type,
// falling back to the stock tracker types.
func (m *ExternalProjectMapping) IssueTypeFor(t EntityType) string {
	if m != nil && m.IssueTypes != nil {
		if v, ok := m.IssueTypes[string(t)].(string); ok && v != "" {
			return v
		}
	}
	return defaultIssueTypes[t]
}
