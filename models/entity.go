package models

import (
	"time"

	"gorm.io/gorm"
)

// The test-management entities below are owned by their own modules; only the
// columns the tracker sync reads and writes are modelled here.

type TestSuite struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

type TestCase struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	SuiteID     string `gorm:"index"`
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

type TestPlan struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

type Defect struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"index"`
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// EntitySnapshot is the syncable content of any local entity.
type EntitySnapshot struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// All lists every table owned by the integration subsystem plus the local
// entity tables it reads, in migration order.
func All() []interface{} {
	return []interface{}{
		&Integration{},
		&ExternalProjectMapping{},
		&IssueLink{},
		&WebhookEvent{},
		&TestSuite{},
		&TestCase{},
		&TestPlan{},
		&Defect{},
	}
}
