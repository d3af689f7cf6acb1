package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jira-sync/services"
)

// HandleTestConnection runs the handshake only. The body always carries the
// diagnostic result, even when the connection failed.
func HandleTestConnection(tester services.ConnectionTester) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg services.ConnectionConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			badRequest(c, "invalid connection config")
			return
		}
		c.JSON(http.StatusOK, tester.TestConnection(c.Request.Context(), cfg))
	}
}

// HandleConnectIntegration validates and saves the project's integration.
func HandleConnectIntegration(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg services.ConnectionConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			badRequest(c, "invalid connection config")
			return
		}
		in, result, err := svc.Connect(c.Request.Context(), c.Param("projectId"), cfg)
		if err != nil {
			if result.Error != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"result": result})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"integration": in, "result": result})
	}
}

type integrationStateRequest struct {
	IsActive    *bool `json:"isActive"`
	SyncEnabled *bool `json:"syncEnabled"`
}

func HandleUpdateIntegration(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req integrationStateRequest
		if err := c.ShouldBindJSON(&req); err != nil || (req.IsActive == nil && req.SyncEnabled == nil) {
			badRequest(c, "isActive or syncEnabled is required")
			return
		}
		id := c.Param("id")
		ctx := c.Request.Context()

		in, err := svc.Get(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if req.IsActive != nil {
			if in, err = svc.SetActive(ctx, id, *req.IsActive); err != nil {
				respondError(c, err)
				return
			}
		}
		if req.SyncEnabled != nil {
			if in, err = svc.SetSyncEnabled(ctx, id, *req.SyncEnabled); err != nil {
				respondError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, in)
	}
}

func HandleDiscoverProjects(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := svc.DiscoverProjects(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

func HandleListMappings(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		mappings, err := svc.ListMappings(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mappings": mappings})
	}
}

func HandleMapProject(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.MappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid mapping request")
			return
		}
		m, err := svc.MapProject(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// HandleSearchIssues serves the link picker: ?jql=...&max=20
func HandleSearchIssues(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		maxResults, _ := strconv.Atoi(c.DefaultQuery("max", "20"))
		res, err := svc.SearchIssues(c.Request.Context(), c.Param("id"), c.Query("jql"), maxResults)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func HandleRegisterWebhook(svc *services.IntegrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, callback, err := svc.RegisterWebhook(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": callback, "registration": reg})
	}
}

func HandleQueueStatus(queue *services.TaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, queue.Status())
	}
}
