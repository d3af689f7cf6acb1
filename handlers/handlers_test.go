package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-sync/jira"
	"jira-sync/models"
	"jira-sync/repository"
	"jira-sync/services"
)

const trackerURL = "https://acme.atlassian.net"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("fail to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("fail to migrate test db: %v", err)
	}
	return db
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	queue  *services.TaskQueue
}

func newTestServer(t *testing.T, queueSize int) *testServer {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)

	integrations := repository.NewIntegrationStore(db)
	mappings := repository.NewMappingStore(db)
	links := repository.NewLinkStore(db)
	events := repository.NewWebhookEventStore(db)
	clients := services.NewClientFactory(jira.WithTimeout(2*time.Second), jira.WithMaxRetries(0))

	validator := services.NewConnectionValidator(jira.DefaultVendor, 2*time.Second, 2*time.Second)
	engine := services.NewSyncEngine(integrations, mappings, links, repository.NewEntityStore(db), clients)
	queue := services.NewTaskQueue(2, queueSize)

	r := gin.New()
	RegisterRoutes(r, Dependencies{
		Integrations: integrations,
		Events:       events,
		Validator:    validator,
		Service:      services.NewIntegrationService(validator, integrations, mappings, clients, "https://tms.example.com"),
		Engine:       engine,
		Processor:    services.NewWebhookProcessor(events, links, engine),
		Queue:        queue,
	})
	return &testServer{router: r, db: db, queue: queue}
}

func (s *testServer) seedIntegration(t *testing.T, id, secret string, active bool) {
	require.NoError(t, s.db.Create(&models.Integration{
		ID:             id,
		ProjectID:      "proj-" + id,
		BaseURL:        trackerURL,
		AuthKind:       models.AuthKindAPIToken,
		DeploymentType: models.DeploymentCloud,
		APIVersion:     "3",
		Email:          "qa@example.com",
		APIToken:       "tok",
		WebhookSecret:  secret,
		IsActive:       active,
		SyncEnabled:    true,
	}).Error)
}

func (s *testServer) seedLink(t *testing.T, integrationID, issueKey, entityID string, direction models.SyncDirection) {
	require.NoError(t, s.db.Create(&models.IssueLink{
		ID:            integrationID + "-" + issueKey + "-" + entityID,
		IntegrationID: integrationID,
		IssueKey:      issueKey,
		Summary:       "Cached",
		EntityType:    models.EntityTypeCase,
		EntityID:      entityID,
		SyncStatus:    models.SyncStatusSynced,
		SyncDirection: direction,
	}).Error)
}

func (s *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) count(t *testing.T, model interface{}) int64 {
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func mustJSON(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
