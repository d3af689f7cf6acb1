package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/services"
)

type unlinkRequest struct {
	IssueKey   string            `json:"issueKey"`
	EntityType models.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

func HandleLink(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid link request")
			return
		}
		link, err := engine.Link(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, link)
	}
}

func HandleUnlink(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req unlinkRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.IssueKey == "" || req.EntityID == "" {
			badRequest(c, "issueKey, entityType and entityId are required")
			return
		}
		if !req.EntityType.Valid() {
			badRequest(c, "unknown entity type")
			return
		}
		if err := engine.Unlink(c.Request.Context(), req.IssueKey, req.EntityType, req.EntityID); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func HandleCreateIssue(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateIssueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid create request")
			return
		}
		link, err := engine.CreateAndLink(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, link)
	}
}

// entityParams reads :type and :id; the type accepts "cases" as well as "CASE".
func entityParams(c *gin.Context) (models.EntityType, string, bool) {
	entityType, err := models.ParseEntityType(c.Param("type"))
	if err != nil {
		badRequest(c, err.Error())
		return "", "", false
	}
	return entityType, c.Param("id"), true
}

// respondReport writes the report; a failed sync still returns the report
// alongside the error so callers see which links failed. Typed errors keep
// their status and code, anything else is reported as a bad gateway.
func respondReport(c *gin.Context, report *services.SyncReport, err error) {
	if err != nil && report == nil {
		respondError(c, err)
		return
	}
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"report": report})
		return
	}

	body := gin.H{"report": report, "error": err.Error()}
	status := http.StatusBadGateway
	if e, ok := jira.AsError(err); ok {
		if e.Status != 0 {
			status = e.Status
		}
		body["code"] = e.Code
		if e.Details != "" {
			body["details"] = e.Details
		}
		if e.Solution != "" {
			body["solution"] = e.Solution
		}
	}
	c.JSON(status, body)
}

func HandleSyncEntity(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType, id, ok := entityParams(c)
		if !ok {
			return
		}
		report, err := engine.SyncEntityToExternal(c.Request.Context(), entityType, id)
		respondReport(c, report, err)
	}
}

func HandleCommentEntity(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType, id, ok := entityParams(c)
		if !ok {
			return
		}
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid comment request")
			return
		}
		report, err := engine.CommentOnLinked(c.Request.Context(), entityType, id, req.Text)
		respondReport(c, report, err)
	}
}

func HandleTransitionEntity(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType, id, ok := entityParams(c)
		if !ok {
			return
		}
		var req transitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid transition request")
			return
		}
		report, err := engine.TransitionLinked(c.Request.Context(), entityType, id, req.Status)
		respondReport(c, report, err)
	}
}

func HandleSyncIssue(engine *services.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := engine.SyncFromExternal(c.Request.Context(), c.Param("key"))
		respondReport(c, report, err)
	}
}
