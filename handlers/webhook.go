package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v68/github"
	"gorm.io/datatypes"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
	"jira-sync/services"
)

const (
	maxWebhookBody = 5 << 20
	// only HMAC-SHA256 signatures are accepted
	signaturePrefix = "sha256="
)

// TaskSubmitter accepts background work. *services.TaskQueue satisfies it.
type TaskSubmitter interface {
	Submit(t services.Task) error
}

// HandleTrackerWebhook stores an inbound tracker event, acknowledges it and
// hands processing to the queue. The row is written before the response.
func HandleTrackerWebhook(
	integrations repository.IntegrationRepository,
	events repository.WebhookEventRepository,
	processor *services.WebhookProcessor,
	queue TaskSubmitter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		integrationID := c.Param("integrationId")
		in, err := integrations.Get(c.Request.Context(), integrationID)
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown integration"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
			return
		}

		if in.WebhookSecret != "" {
			signature := c.GetHeader("X-Hub-Signature-256")
			if signature == "" {
				signature = c.GetHeader("X-Hub-Signature")
			}
			if !strings.HasPrefix(signature, signaturePrefix) {
				log.Printf("webhook signature rejected: integration=%s error=unsupported signature algorithm", in.ID)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
				return
			}
			if err := github.ValidateSignature(signature, payload, []byte(in.WebhookSecret)); err != nil {
				log.Printf("webhook signature rejected: integration=%s error=%v", in.ID, err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
				return
			}
		}

		ev, err := services.ParseEvent(payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}

		ref := ev.Issue()
		row := &models.WebhookEvent{
			IntegrationID: in.ID,
			EventType:     ev.EventType(),
			IssueKey:      ref.Key,
			IssueID:       ref.ID,
			Payload:       datatypes.JSON(payload),
		}
		if err := events.Create(c.Request.Context(), row); err != nil {
			respondError(c, err)
			return
		}
		log.Printf("webhook received: event=%s integration=%s type=%s issue=%s", row.ID, in.ID, row.EventType, row.IssueKey)

		if err := queue.Submit(processor.Task(row.ID)); err != nil {
			// the row is durable; the sweeper picks it up later
			if jira.IsCode(err, jira.CodeQueueFull) {
				log.Printf("webhook deferred, queue full: event=%s", row.ID)
			} else {
				log.Printf("webhook submit failed: event=%s error=%v", row.ID, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"received": true, "eventId": row.ID})
	}
}
