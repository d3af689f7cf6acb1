package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventIssueCreated = "issue_created"
	EventIssueUpdated = "issue_updated"
	EventIssueDeleted = "issue_deleted"
)

// IssueRef identifies the issue an event is about.
type IssueRef struct {
	Key string
	ID  string
}

// TrackerEvent is the closed set of inbound webhook events. Every value is
// one of IssueCreated, IssueUpdated, IssueDeleted or UnrecognizedEvent.
type TrackerEvent interface {
	EventType() string
	Issue() IssueRef
	trackerEvent()
}

type IssueCreated struct {
	IssueRef
	Summary string
}

type IssueUpdated struct {
	IssueRef
	Summary string
	// ChangedFields lists the changelog field names, when the payload carries them.
	ChangedFields []string
}

type IssueDeleted struct {
	IssueRef
}

// UnrecognizedEvent is any event type the processor ignores.
type UnrecognizedEvent struct {
	IssueRef
	Type string
}

func (e IssueCreated) EventType() string      { return EventIssueCreated }
func (e IssueUpdated) EventType() string      { return EventIssueUpdated }
func (e IssueDeleted) EventType() string      { return EventIssueDeleted }
func (e UnrecognizedEvent) EventType() string { return e.Type }

func (e IssueCreated) Issue() IssueRef      { return e.IssueRef }
func (e IssueUpdated) Issue() IssueRef      { return e.IssueRef }
func (e IssueDeleted) Issue() IssueRef      { return e.IssueRef }
func (e UnrecognizedEvent) Issue() IssueRef { return e.IssueRef }

func (IssueCreated) trackerEvent()      {}
func (IssueUpdated) trackerEvent()      {}
func (IssueDeleted) trackerEvent()      {}
func (UnrecognizedEvent) trackerEvent() {}

type webhookPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp"`
	Issue        *struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
		} `json:"fields"`
	} `json:"issue"`
	Changelog *struct {
		Items []struct {
			Field string `json:"field"`
		} `json:"items"`
	} `json:"changelog"`
}

// NormalizeEventType strips the vendor prefix: "jira:issue_updated" -> "issue_updated".
func NormalizeEventType(raw string) string {
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseEvent decodes a webhook body. Only malformed JSON is an error; any
// well-formed body maps to some TrackerEvent.
func ParseEvent(body []byte) (TrackerEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}

	var ref IssueRef
	var summary string
	if p.Issue != nil {
		ref = IssueRef{Key: p.Issue.Key, ID: p.Issue.ID}
		summary = p.Issue.Fields.Summary
	}
	eventType := NormalizeEventType(p.WebhookEvent)

	// events without an issue key cannot be routed
	if ref.Key == "" {
		return UnrecognizedEvent{IssueRef: ref, Type: eventType}, nil
	}

	switch eventType {
	case EventIssueCreated:
		return IssueCreated{IssueRef: ref, Summary: summary}, nil
	case EventIssueUpdated:
		ev := IssueUpdated{IssueRef: ref, Summary: summary}
		if p.Changelog != nil {
			for _, item := range p.Changelog.Items {
				ev.ChangedFields = append(ev.ChangedFields, item.Field)
			}
		}
		return ev, nil
	case EventIssueDeleted:
		return IssueDeleted{IssueRef: ref}, nil
	}
	return UnrecognizedEvent{IssueRef: ref, Type: eventType}, nil
}
