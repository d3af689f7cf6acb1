package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"jira-sync/jira"
	"jira-sync/repository"
)

// respondError writes err as JSON with the status of its error code.
func respondError(c *gin.Context, err error) {
	if e, ok := jira.AsError(err); ok {
		status := e.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body := gin.H{"error": e.Message, "code": e.Code}
		if e.Details != "" {
			body["details"] = e.Details
		}
		if e.Solution != "" {
			body["solution"] = e.Solution
		}
		c.JSON(status, body)
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": jira.CodeNotFound})
		return
	}
	log.Printf("request failed: method=%s path=%s error=%v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": jira.CodeUnexpected})
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, jira.NewError(jira.CodeInvalidRequest, msg))
}
