package models

import "fmt"

// AuthKind is the credential scheme an Integration authenticates with.
type AuthKind string

const (
	AuthKindOAuth    AuthKind = "OAUTH"
	AuthKindAPIToken AuthKind = "API_TOKEN"
	AuthKindBasic    AuthKind = "BASIC"
)

func (k AuthKind) Valid() bool {
	switch k {
	case AuthKindOAuth, AuthKindAPIToken, AuthKindBasic:
		return true
	}
	return false
}

// EntityType is the kind of local entity a link points at.
type EntityType string

const (
	EntityTypeSuite  EntityType = "SUITE"
	EntityTypeCase   EntityType = "CASE"
	EntityTypePlan   EntityType = "PLAN"
	EntityTypeDefect EntityType = "DEFECT"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeSuite, EntityTypeCase, EntityTypePlan, EntityTypeDefect:
		return true
	}
	return false
}

// ParseEntityType accepts the upper-case wire form as well as lower-case route segments.
func ParseEntityType(s string) (EntityType, error) {
	var t EntityType
	switch s {
	case "SUITE", "suite", "suites":
		t = EntityTypeSuite
	case "CASE", "case", "cases":
		t = EntityTypeCase
	case "PLAN", "plan", "plans":
		t = EntityTypePlan
	case "DEFECT", "defect", "defects":
		t = EntityTypeDefect
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// SyncStatus is the state of a link: PENDING -> SYNCED, any failure -> FAILED,
// any later success -> SYNCED.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// SyncDirection decides which side is authoritative for a link.
type SyncDirection string

const (
	DirectionToExternal    SyncDirection = "TO_EXTERNAL"
	DirectionFromExternal  SyncDirection = "FROM_EXTERNAL"
	DirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

func (d SyncDirection) Valid() bool {
	switch d {
	case DirectionToExternal, DirectionFromExternal, DirectionBidirectional:
		return true
	}
	return false
}

// AllowsOutbound reports whether local changes are pushed to the tracker.
func (d SyncDirection) AllowsOutbound() bool {
	switch d {
	case DirectionToExternal, DirectionBidirectional:
		return true
	case DirectionFromExternal:
		return false
	}
	return false
}

// AllowsInbound reports whether tracker changes refresh the link.
func (d SyncDirection) AllowsInbound() bool {
	switch d {
	case DirectionFromExternal, DirectionBidirectional:
		return true
	case DirectionToExternal:
		return false
	}
	return false
}

// OwnsLocalContent reports whether inbound sync may overwrite the local entity itself.
func (d SyncDirection) OwnsLocalContent() bool {
	return d == DirectionBidirectional
}

// DeploymentType is the detected flavor of the tracker instance.
type DeploymentType string

const (
	DeploymentCloud      DeploymentType = "CLOUD"
	DeploymentServer     DeploymentType = "SERVER"
	DeploymentDataCenter DeploymentType = "DATACENTER"
	DeploymentUnknown    DeploymentType = "UNKNOWN"
)
