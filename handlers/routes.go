package handlers

import (
	"github.com/gin-gonic/gin"

	"jira-sync/repository"
	"jira-sync/services"
)

// Dependencies are the collaborators the routes are built from.
type Dependencies struct {
	Integrations repository.IntegrationRepository
	Events       repository.WebhookEventRepository
	Validator    services.ConnectionTester
	Service      *services.IntegrationService
	Engine       *services.SyncEngine
	Processor    *services.WebhookProcessor
	Queue        *services.TaskQueue
}

func RegisterRoutes(r *gin.Engine, d Dependencies) {
	r.POST("/webhooks/jira/:integrationId", HandleTrackerWebhook(d.Integrations, d.Events, d.Processor, d.Queue))

	api := r.Group("/api")
	api.POST("/integrations/test", HandleTestConnection(d.Validator))
	api.GET("/integrations/queue", HandleQueueStatus(d.Queue))
	api.POST("/projects/:projectId/integration", HandleConnectIntegration(d.Service))
	api.PATCH("/integrations/:id", HandleUpdateIntegration(d.Service))
	api.GET("/integrations/:id/projects", HandleDiscoverProjects(d.Service))
	api.GET("/integrations/:id/mappings", HandleListMappings(d.Service))
	api.POST("/integrations/:id/mappings", HandleMapProject(d.Service))
	api.GET("/integrations/:id/search", HandleSearchIssues(d.Service))
	api.POST("/integrations/:id/webhook", HandleRegisterWebhook(d.Service))

	api.POST("/links", HandleLink(d.Engine))
	api.DELETE("/links", HandleUnlink(d.Engine))
	api.POST("/links/create-issue", HandleCreateIssue(d.Engine))

	api.POST("/entities/:type/:id/sync", HandleSyncEntity(d.Engine))
	api.POST("/entities/:type/:id/comment", HandleCommentEntity(d.Engine))
	api.POST("/entities/:type/:id/transition", HandleTransitionEntity(d.Engine))
	api.POST("/issues/:key/sync", HandleSyncIssue(d.Engine))
}
