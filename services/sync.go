package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
)

// SyncOutcome is what happened to one link during a sync call.
type SyncOutcome string

const (
	OutcomeSynced             SyncOutcome = "SYNCED"
	OutcomeFailed             SyncOutcome = "FAILED"
	OutcomeNoLink             SyncOutcome = "NO_LINK"
	OutcomeSkippedByDirection SyncOutcome = "SKIPPED_BY_DIRECTION"
	OutcomeSkippedDisabled    SyncOutcome = "SKIPPED_DISABLED"
)

// Sync actions, recorded on a link when it fails.
const (
	actionPush       = "push"
	actionPull       = "pull"
	actionComment    = "comment"
	actionTransition = "transition"
)

// LinkOutcome is the per-link entry of a SyncReport.
type LinkOutcome struct {
	LinkID     string            `json:"linkId,omitempty"`
	IssueKey   string            `json:"issueKey"`
	EntityType models.EntityType `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	Outcome    SyncOutcome       `json:"outcome"`
	Error      string            `json:"error,omitempty"`
}

// SyncReport lists the outcome of every link a sync call looked at.
type SyncReport struct {
	Results []LinkOutcome `json:"results"`
}

func (r *SyncReport) add(link *models.IssueLink, outcome SyncOutcome, err error) {
	o := LinkOutcome{
		LinkID:     link.ID,
		IssueKey:   link.IssueKey,
		EntityType: link.EntityType,
		EntityID:   link.EntityID,
		Outcome:    outcome,
	}
	if err != nil {
		o.Error = err.Error()
	}
	r.Results = append(r.Results, o)
}

func (r *SyncReport) merge(other *SyncReport) {
	if other != nil {
		r.Results = append(r.Results, other.Results...)
	}
}

// Count returns how many links ended with outcome.
func (r *SyncReport) Count(outcome SyncOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// LinkRequest identifies the link to create or refresh.
type LinkRequest struct {
	IntegrationID string               `json:"integrationId"`
	MappingID     string               `json:"mappingId,omitempty"`
	IssueKey      string               `json:"issueKey"`
	EntityType    models.EntityType    `json:"entityType"`
	EntityID      string               `json:"entityId"`
	Direction     models.SyncDirection `json:"direction,omitempty"`
}

// CreateIssueRequest asks for a new tracker issue built from a local entity.
type CreateIssueRequest struct {
	IntegrationID string            `json:"integrationId"`
	MappingID     string            `json:"mappingId"`
	EntityType    models.EntityType `json:"entityType"`
	EntityID      string            `json:"entityId"`
	ParentKey     string            `json:"parentKey,omitempty"`
}

// SyncEngine owns the link lifecycle and moves content between local
// entities and tracker issues.
type SyncEngine struct {
	integrations repository.IntegrationRepository
	mappings     repository.MappingRepository
	links        repository.LinkRepository
	entities     repository.EntityRepository
	clients      ClientFactory
}

func NewSyncEngine(
	integrations repository.IntegrationRepository,
	mappings repository.MappingRepository,
	links repository.LinkRepository,
	entities repository.EntityRepository,
	clients ClientFactory,
) *SyncEngine {
	return &SyncEngine{
		integrations: integrations,
		mappings:     mappings,
		links:        links,
		entities:     entities,
		clients:      clients,
	}
}

// Link fetches the issue and upserts the link by natural key. A new link is
// SYNCED; an existing one only has its cached fields refreshed.
func (e *SyncEngine) Link(ctx context.Context, req LinkRequest) (*models.IssueLink, error) {
	if req.IssueKey == "" || req.EntityID == "" {
		return nil, jira.NewError(jira.CodeInvalidRequest, "issue key and entity id are required")
	}
	if !req.EntityType.Valid() {
		return nil, jira.Errorf(jira.CodeInvalidRequest, "unknown entity type %q", req.EntityType)
	}
	direction := req.Direction
	if direction == "" {
		direction = models.DirectionBidirectional
	}
	if !direction.Valid() {
		return nil, jira.Errorf(jira.CodeInvalidRequest, "unknown sync direction %q", direction)
	}

	in, err := e.activeIntegration(ctx, req.IntegrationID)
	if err != nil {
		return nil, err
	}
	var mappingID *string
	if req.MappingID != "" {
		if _, err := e.mappingFor(ctx, in.ID, req.MappingID); err != nil {
			return nil, err
		}
		mappingID = &req.MappingID
	}

	client, err := e.clients(in)
	if err != nil {
		return nil, err
	}
	issue, err := client.GetIssue(ctx, req.IssueKey)
	if err != nil {
		return nil, err
	}

	key := issue.Key
	if key == "" {
		key = req.IssueKey
	}
	now := time.Now()
	link := &models.IssueLink{
		IntegrationID: in.ID,
		MappingID:     mappingID,
		IssueKey:      key,
		IssueID:       issue.ID,
		IssueType:     issue.Fields.IssueType.Name,
		Summary:       issue.Fields.Summary,
		Status:        issue.Fields.Status.Name,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		SyncStatus:    models.SyncStatusSynced,
		SyncDirection: direction,
		LastSyncedAt:  &now,
	}
	if err := e.links.Upsert(ctx, link); err != nil {
		return nil, err
	}
	log.Printf("issue linked: link=%s issue=%s entity=%s/%s direction=%s",
		link.ID, link.IssueKey, link.EntityType, link.EntityID, link.SyncDirection)
	return link, nil
}

// Unlink deletes the link by natural key. A missing link is not an error.
func (e *SyncEngine) Unlink(ctx context.Context, issueKey string, entityType models.EntityType, entityID string) error {
	n, err := e.links.DeleteByNaturalKey(ctx, issueKey, entityType, entityID)
	if err != nil {
		return err
	}
	log.Printf("issue unlinked: issue=%s entity=%s/%s removed=%d", issueKey, entityType, entityID, n)
	return nil
}

// CreateAndLink creates an issue in the mapped project from the entity's
// content and links it bidirectionally.
func (e *SyncEngine) CreateAndLink(ctx context.Context, req CreateIssueRequest) (*models.IssueLink, error) {
	if !req.EntityType.Valid() {
		return nil, jira.Errorf(jira.CodeInvalidRequest, "unknown entity type %q", req.EntityType)
	}
	in, err := e.activeIntegration(ctx, req.IntegrationID)
	if err != nil {
		return nil, err
	}
	mapping, err := e.mappingFor(ctx, in.ID, req.MappingID)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshot(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}

	client, err := e.clients(in)
	if err != nil {
		return nil, err
	}
	created, err := client.CreateIssue(ctx, jira.CreateIssueInput{
		ProjectKey:  mapping.ExternalProjectKey,
		Summary:     snap.Title,
		IssueType:   mapping.IssueTypeFor(req.EntityType),
		Description: snap.Description,
		ParentKey:   req.ParentKey,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("issue created: issue=%s project=%s entity=%s/%s",
		created.Key, mapping.ExternalProjectKey, req.EntityType, req.EntityID)

	return e.Link(ctx, LinkRequest{
		IntegrationID: in.ID,
		MappingID:     mapping.ID,
		IssueKey:      created.Key,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		Direction:     models.DirectionBidirectional,
	})
}

// SyncEntityToExternal pushes the entity's title and description to every
// linked issue that accepts outbound changes. Failed links are marked FAILED
// before the error is returned.
func (e *SyncEngine) SyncEntityToExternal(ctx context.Context, entityType models.EntityType, entityID string) (*SyncReport, error) {
	links, err := e.links.FindByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	return e.push(ctx, entityType, entityID, links)
}

// push writes the entity's snapshot to the given links. The snapshot is only
// loaded when at least one link accepts outbound changes.
func (e *SyncEngine) push(ctx context.Context, entityType models.EntityType, entityID string, links []models.IssueLink) (*SyncReport, error) {
	var (
		snap *models.EntitySnapshot
		err  error
	)
	for _, link := range links {
		if link.SyncDirection.AllowsOutbound() {
			if snap, err = e.snapshot(ctx, entityType, entityID); err != nil {
				return nil, err
			}
			break
		}
	}

	return e.forEachOutbound(ctx, links, actionPush, func(ctx context.Context, client IssueTracker, link *models.IssueLink) error {
		title, desc := snap.Title, snap.Description
		if err := client.UpdateIssue(ctx, link.IssueKey, jira.IssueUpdate{Summary: &title, Description: &desc}); err != nil {
			return err
		}
		link.Summary = title
		return nil
	})
}

// CommentOnLinked adds a comment to every outbound-eligible linked issue.
func (e *SyncEngine) CommentOnLinked(ctx context.Context, entityType models.EntityType, entityID, text string) (*SyncReport, error) {
	if text == "" {
		return nil, jira.NewError(jira.CodeInvalidRequest, "comment text is required")
	}
	links, err := e.links.FindByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return e.forEachOutbound(ctx, links, actionComment, func(ctx context.Context, client IssueTracker, link *models.IssueLink) error {
		_, err := client.AddComment(ctx, link.IssueKey, text)
		return err
	})
}

// TransitionLinked moves every outbound-eligible linked issue to status.
func (e *SyncEngine) TransitionLinked(ctx context.Context, entityType models.EntityType, entityID, status string) (*SyncReport, error) {
	if status == "" {
		return nil, jira.NewError(jira.CodeInvalidRequest, "target status is required")
	}
	links, err := e.links.FindByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return e.forEachOutbound(ctx, links, actionTransition, func(ctx context.Context, client IssueTracker, link *models.IssueLink) error {
		if err := client.TransitionIssue(ctx, link.IssueKey, status); err != nil {
			return err
		}
		link.Status = status
		return nil
	})
}

type outboundFunc func(ctx context.Context, client IssueTracker, link *models.IssueLink) error

// forEachOutbound applies fn to each link that allows outbound flow and whose
// integration is enabled, recording the state transition of every link.
func (e *SyncEngine) forEachOutbound(ctx context.Context, links []models.IssueLink, action string, fn outboundFunc) (*SyncReport, error) {
	report := &SyncReport{}
	if len(links) == 0 {
		log.Printf("outbound %s skipped: no linked issues", action)
		report.Results = append(report.Results, LinkOutcome{Outcome: OutcomeNoLink})
		return report, nil
	}

	clients := newClientCache(e)
	var errs []error
	for i := range links {
		link := &links[i]
		if !link.SyncDirection.AllowsOutbound() {
			log.Printf("outbound %s skipped by direction: link=%s issue=%s direction=%s",
				action, link.ID, link.IssueKey, link.SyncDirection)
			report.add(link, OutcomeSkippedByDirection, nil)
			continue
		}

		client, enabled, err := clients.get(ctx, link.IntegrationID)
		if err == nil && !enabled {
			log.Printf("outbound %s skipped, integration disabled: link=%s integration=%s",
				action, link.ID, link.IntegrationID)
			report.add(link, OutcomeSkippedDisabled, nil)
			continue
		}
		if err == nil {
			err = fn(ctx, client, link)
		}
		if err != nil {
			e.markFailed(ctx, link, action, err)
			report.add(link, OutcomeFailed, err)
			errs = append(errs, fmt.Errorf("%s %s: %w", action, link.IssueKey, err))
			continue
		}

		e.markSynced(ctx, link)
		report.add(link, OutcomeSynced, nil)
		log.Printf("outbound %s done: link=%s issue=%s", action, link.ID, link.IssueKey)
	}
	return report, errors.Join(errs...)
}

// SyncFromExternal refreshes every link for issueKey that accepts inbound
// changes. The local entity is overwritten only for bidirectional links.
func (e *SyncEngine) SyncFromExternal(ctx context.Context, issueKey string) (*SyncReport, error) {
	links, err := e.links.FindByIssueKey(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{}
	if len(links) == 0 {
		log.Printf("inbound sync skipped: no links for issue=%s", issueKey)
		report.Results = append(report.Results, LinkOutcome{IssueKey: issueKey, Outcome: OutcomeNoLink})
		return report, nil
	}

	// one fetch per integration
	var order []string
	byIntegration := map[string][]*models.IssueLink{}
	for i := range links {
		link := &links[i]
		if !link.SyncDirection.AllowsInbound() {
			log.Printf("inbound sync skipped by direction: link=%s issue=%s direction=%s",
				link.ID, link.IssueKey, link.SyncDirection)
			report.add(link, OutcomeSkippedByDirection, nil)
			continue
		}
		if _, ok := byIntegration[link.IntegrationID]; !ok {
			order = append(order, link.IntegrationID)
		}
		byIntegration[link.IntegrationID] = append(byIntegration[link.IntegrationID], link)
	}

	clients := newClientCache(e)
	var errs []error
	for _, integrationID := range order {
		group := byIntegration[integrationID]
		client, enabled, err := clients.get(ctx, integrationID)
		if err == nil && !enabled {
			for _, link := range group {
				log.Printf("inbound sync skipped, integration disabled: link=%s integration=%s", link.ID, integrationID)
				report.add(link, OutcomeSkippedDisabled, nil)
			}
			continue
		}

		var issue *jira.Issue
		if err == nil {
			issue, err = client.GetIssue(ctx, issueKey)
		}
		if err != nil {
			for _, link := range group {
				e.markFailed(ctx, link, actionPull, err)
				report.add(link, OutcomeFailed, err)
			}
			errs = append(errs, fmt.Errorf("%s %s: %w", actionPull, issueKey, err))
			continue
		}

		for _, link := range group {
			if err := e.applyInbound(ctx, link, issue); err != nil {
				e.markFailed(ctx, link, actionPull, err)
				report.add(link, OutcomeFailed, err)
				errs = append(errs, fmt.Errorf("pull %s into %s %s: %w", issueKey, link.EntityType, link.EntityID, err))
				continue
			}
			report.add(link, OutcomeSynced, nil)
		}
	}
	return report, errors.Join(errs...)
}

func (e *SyncEngine) applyInbound(ctx context.Context, link *models.IssueLink, issue *jira.Issue) error {
	summary := issue.Fields.Summary
	description := string(issue.Fields.Description)

	if link.SyncDirection.OwnsLocalContent() {
		snap, err := e.snapshot(ctx, link.EntityType, link.EntityID)
		if err != nil {
			return err
		}
		if snap.Title != summary || snap.Description != description {
			next := models.EntitySnapshot{Title: summary, Description: description}
			if err := e.entities.Update(ctx, link.EntityType, link.EntityID, next); err != nil {
				return err
			}
			log.Printf("local entity updated from issue: entity=%s/%s issue=%s", link.EntityType, link.EntityID, link.IssueKey)
		}
	}

	link.Summary = summary
	link.Status = issue.Fields.Status.Name
	if issue.Fields.IssueType.Name != "" {
		link.IssueType = issue.Fields.IssueType.Name
	}
	if issue.ID != "" {
		link.IssueID = issue.ID
	}
	e.markSynced(ctx, link)
	return nil
}

// RetryFailed re-runs sync for up to limit FAILED links. A failed pull is
// retried as a pull, and a failed push only pushes to the links that failed.
func (e *SyncEngine) RetryFailed(ctx context.Context, limit int) (*SyncReport, error) {
	failed, err := e.links.FindBySyncStatus(ctx, models.SyncStatusFailed, limit)
	if err != nil {
		return nil, err
	}

	var entityOrder, issueOrder []string
	pushes := map[string][]models.IssueLink{}
	pulls := map[string]bool{}
	for _, link := range failed {
		if retryAsPush(&link) {
			key := string(link.EntityType) + "/" + link.EntityID
			if _, ok := pushes[key]; !ok {
				entityOrder = append(entityOrder, key)
			}
			pushes[key] = append(pushes[key], link)
			continue
		}
		if !pulls[link.IssueKey] {
			pulls[link.IssueKey] = true
			issueOrder = append(issueOrder, link.IssueKey)
		}
	}

	report := &SyncReport{}
	var errs []error
	for _, key := range entityOrder {
		group := pushes[key]
		r, err := e.push(ctx, group[0].EntityType, group[0].EntityID, group)
		report.merge(r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, issueKey := range issueOrder {
		r, err := e.SyncFromExternal(ctx, issueKey)
		report.merge(r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		log.Printf("failed links retried: candidates=%d synced=%d still_failed=%d",
			len(failed), report.Count(OutcomeSynced), report.Count(OutcomeFailed))
	}
	return report, errors.Join(errs...)
}

// retryAsPush reports whether a FAILED link is retried outbound. Comment and
// transition payloads are not kept, so those links are refreshed from the
// tracker when their direction allows it.
func retryAsPush(link *models.IssueLink) bool {
	switch link.LastFailedAction {
	case actionPush:
		return link.SyncDirection.AllowsOutbound()
	case actionPull:
		return false
	}
	return !link.SyncDirection.AllowsInbound()
}

func (e *SyncEngine) markSynced(ctx context.Context, link *models.IssueLink) {
	now := time.Now()
	link.SyncStatus = models.SyncStatusSynced
	link.LastFailedAction = ""
	link.LastSyncedAt = &now
	if err := e.links.Save(ctx, link); err != nil {
		log.Printf("failed to save synced link: link=%s error=%v", link.ID, err)
		return
	}
	if err := e.integrations.TouchLastSynced(ctx, link.IntegrationID, now); err != nil {
		log.Printf("failed to touch integration: integration=%s error=%v", link.IntegrationID, err)
	}
}

// markFailed persists FAILED and leaves the cached fields as they were.
func (e *SyncEngine) markFailed(ctx context.Context, link *models.IssueLink, action string, cause error) {
	log.Printf("%s failed: link=%s issue=%s error=%v", action, link.ID, link.IssueKey, cause)
	link.SyncStatus = models.SyncStatusFailed
	link.LastFailedAction = action
	if err := e.links.Save(ctx, link); err != nil {
		log.Printf("failed to save failed link: link=%s error=%v", link.ID, err)
	}
}

func (e *SyncEngine) activeIntegration(ctx context.Context, id string) (*models.Integration, error) {
	in, err := e.integrations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, jira.Errorf(jira.CodeNotFound, "integration %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if !in.IsActive {
		return nil, jira.Errorf(jira.CodeInactive, "integration %s is inactive", id)
	}
	return in, nil
}

func (e *SyncEngine) mappingFor(ctx context.Context, integrationID, mappingID string) (*models.ExternalProjectMapping, error) {
	m, err := e.mappings.Get(ctx, mappingID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && m.IntegrationID != integrationID) {
		return nil, jira.Errorf(jira.CodeNotFound, "project mapping %s not found", mappingID)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (e *SyncEngine) snapshot(ctx context.Context, entityType models.EntityType, entityID string) (*models.EntitySnapshot, error) {
	snap, err := e.entities.Get(ctx, entityType, entityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, jira.Errorf(jira.CodeNotFound, "%s %s not found", entityType, entityID)
	}
	return snap, err
}

// clientCache builds at most one client per integration within a sync call.
type clientCache struct {
	engine  *SyncEngine
	clients map[string]IssueTracker
	enabled map[string]bool
}

func newClientCache(e *SyncEngine) *clientCache {
	return &clientCache{engine: e, clients: map[string]IssueTracker{}, enabled: map[string]bool{}}
}

// get reports enabled=false for inactive or sync-disabled integrations.
func (c *clientCache) get(ctx context.Context, integrationID string) (IssueTracker, bool, error) {
	if enabled, ok := c.enabled[integrationID]; ok {
		return c.clients[integrationID], enabled, nil
	}
	in, err := c.engine.integrations.Get(ctx, integrationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, jira.Errorf(jira.CodeNotFound, "integration %s not found", integrationID)
	}
	if err != nil {
		return nil, false, err
	}
	if !in.IsActive || !in.SyncEnabled {
		c.enabled[integrationID] = false
		return nil, false, nil
	}
	client, err := c.engine.clients(in)
	if err != nil {
		return nil, false, err
	}
	c.clients[integrationID] = client
	c.enabled[integrationID] = true
	return client, true, nil
}
