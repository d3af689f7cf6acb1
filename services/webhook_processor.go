package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"jira-sync/models"
	"jira-sync/repository"
)

// InboundSyncer refreshes links from the tracker. *SyncEngine satisfies it.
type InboundSyncer interface {
	SyncFromExternal(ctx context.Context, issueKey string) (*SyncReport, error)
}

// WebhookProcessor applies stored webhook events. Every failure, including a
// panic, is recorded on the event row; nothing escapes Process as a panic.
type WebhookProcessor struct {
	events repository.WebhookEventRepository
	links  repository.LinkRepository
	syncer InboundSyncer
}

func NewWebhookProcessor(events repository.WebhookEventRepository, links repository.LinkRepository, syncer InboundSyncer) *WebhookProcessor {
	return &WebhookProcessor{events: events, links: links, syncer: syncer}
}

// Task wraps Process for the task queue.
func (p *WebhookProcessor) Task(eventID string) Task {
	return Task{
		ID:   eventID,
		Name: "webhook-event",
		Run: func(ctx context.Context) error {
			return p.Process(ctx, eventID)
		},
	}
}

// Process handles one stored event and marks it, and any older unprocessed
// events for the same issue, as processed. The returned error is the
// handling failure already written to the row.
func (p *WebhookProcessor) Process(ctx context.Context, eventID string) error {
	row, err := p.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("webhook event vanished: event=%s", eventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading webhook event %s: %w", eventID, err)
	}
	if row.Processed {
		return nil
	}

	handleErr := p.handle(ctx, row)

	errText := ""
	if handleErr != nil {
		errText = handleErr.Error()
		log.Printf("webhook event failed: event=%s type=%s issue=%s error=%v",
			row.ID, row.EventType, row.IssueKey, handleErr)
	}
	n, err := p.events.MarkProcessed(ctx, row, errText)
	if err != nil {
		log.Printf("failed to mark webhook event processed: event=%s error=%v", row.ID, err)
		return errors.Join(handleErr, err)
	}
	log.Printf("webhook event processed: event=%s type=%s issue=%s marked=%d", row.ID, row.EventType, row.IssueKey, n)
	return handleErr
}

func (p *WebhookProcessor) handle(ctx context.Context, row *models.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", row.EventType, r)
		}
	}()

	ev, err := ParseEvent(row.Payload)
	if err != nil {
		return err
	}

	switch ev := ev.(type) {
	case IssueCreated:
		_, err = p.syncer.SyncFromExternal(ctx, ev.Key)
		return err
	case IssueUpdated:
		_, err = p.syncer.SyncFromExternal(ctx, ev.Key)
		return err
	case IssueDeleted:
		n, err := p.links.DeleteByIssue(ctx, row.IntegrationID, ev.Key)
		if err != nil {
			return err
		}
		log.Printf("links removed for deleted issue: integration=%s issue=%s removed=%d", row.IntegrationID, ev.Key, n)
		return nil
	case UnrecognizedEvent:
		log.Printf("webhook event ignored: event=%s type=%q issue=%s", row.ID, ev.Type, ev.Key)
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}
