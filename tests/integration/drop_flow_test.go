package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gratitudedrop/backend/internal/dropcache"
	"github.com/gratitudedrop/backend/internal/dropwindow"
	"github.com/gratitudedrop/backend/internal/drops"
	"github.com/gratitudedrop/backend/internal/ratelimit"
	"github.com/gratitudedrop/backend/internal/server"
	"github.com/gratitudedrop/backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	adminSecret     = "integration-secret"
	jsonContentType = "application/json"
)

func TestSubmitModerateDropHeartFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&submissions.Submission{}, &drops.Drop{}, &drops.Note{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	resolver, err := dropwindow.NewResolver("America/New_York")
	if err != nil {
		testContext.Fatalf("failed to build resolver: %v", err)
	}

	submissionsService, err := submissions.NewService(submissions.ServiceConfig{
		Database: db,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build submissions service: %v", err)
	}

	dropsService, err := drops.NewService(drops.ServiceConfig{
		Database: db,
		Resolver: resolver,
		Cache:    dropcache.New(5 * time.Minute),
		DropSize: 5,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build drops service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		DropsService:       dropsService,
		SubmissionsService: submissionsService,
		Limiter:            ratelimit.New(5, time.Hour),
		AdminSecret:        adminSecret,
		Logger:             zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	// A visitor submits a note.
	submitBody := []byte(`{"text":"grateful for this flow"}`)
	submitResponse, err := http.Post(testServer.URL+"/api/submit", jsonContentType, bytes.NewReader(submitBody))
	if err != nil {
		testContext.Fatalf("submit request failed: %v", err)
	}
	defer submitResponse.Body.Close()
	if submitResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected submit success, got %d", submitResponse.StatusCode)
	}

	var pending submissions.Submission
	if err := db.First(&pending).Error; err != nil {
		testContext.Fatalf("failed to load submission: %v", err)
	}

	// The operator approves it.
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	approveURL := fmt.Sprintf("%s/admin?key=%s&action=approve&id=%d&page=1", testServer.URL, adminSecret, pending.ID)
	approveResponse, err := client.Get(approveURL)
	if err != nil {
		testContext.Fatalf("approve request failed: %v", err)
	}
	defer approveResponse.Body.Close()
	if approveResponse.StatusCode != http.StatusFound {
		testContext.Fatalf("expected approve redirect, got %d", approveResponse.StatusCode)
	}

	// The next drop read materializes it.
	dropResponse, err := http.Get(testServer.URL + "/api/drop")
	if err != nil {
		testContext.Fatalf("drop request failed: %v", err)
	}
	defer dropResponse.Body.Close()
	dropBody, err := io.ReadAll(dropResponse.Body)
	if err != nil {
		testContext.Fatalf("failed to read drop body: %v", err)
	}

	var dropPayload struct {
		DropID string `json:"dropId"`
		Notes  []struct {
			ID     int64  `json:"id"`
			Text   string `json:"text"`
			Hearts int64  `json:"hearts"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(dropBody, &dropPayload); err != nil {
		testContext.Fatalf("failed to decode drop payload: %v", err)
	}
	if len(dropPayload.Notes) != 1 {
		testContext.Fatalf("expected 1 note in drop, got %d", len(dropPayload.Notes))
	}
	if dropPayload.Notes[0].Text != "grateful for this flow" {
		testContext.Fatalf("unexpected note text %q", dropPayload.Notes[0].Text)
	}

	var used submissions.Submission
	if err := db.First(&used, pending.ID).Error; err != nil {
		testContext.Fatalf("failed to reload submission: %v", err)
	}
	if used.Status != submissions.StatusUsed {
		testContext.Fatalf("materialized submission should be used, got %s", used.Status)
	}

	// A reader hearts the note; the next drop read reflects it despite
	// the earlier cached payload.
	noteID := dropPayload.Notes[0].ID
	heartBody := []byte(fmt.Sprintf(`{"noteId":%d}`, noteID))
	heartResponse, err := http.Post(testServer.URL+"/api/heart", jsonContentType, bytes.NewReader(heartBody))
	if err != nil {
		testContext.Fatalf("heart request failed: %v", err)
	}
	defer heartResponse.Body.Close()
	if heartResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected heart success, got %d", heartResponse.StatusCode)
	}

	refreshedResponse, err := http.Get(testServer.URL + "/api/drop")
	if err != nil {
		testContext.Fatalf("refreshed drop request failed: %v", err)
	}
	defer refreshedResponse.Body.Close()
	refreshedBody, err := io.ReadAll(refreshedResponse.Body)
	if err != nil {
		testContext.Fatalf("failed to read refreshed body: %v", err)
	}
	if err := json.Unmarshal(refreshedBody, &dropPayload); err != nil {
		testContext.Fatalf("failed to decode refreshed payload: %v", err)
	}
	if dropPayload.Notes[0].Hearts != 1 {
		testContext.Fatalf("expected heart count 1 after invalidation, got %d", dropPayload.Notes[0].Hearts)
	}

	// The shared-note deep link serves the same note.
	noteResponse, err := http.Get(fmt.Sprintf("%s/api/note/%d", testServer.URL, noteID))
	if err != nil {
		testContext.Fatalf("note request failed: %v", err)
	}
	defer noteResponse.Body.Close()
	if noteResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected note success, got %d", noteResponse.StatusCode)
	}

	var notePayload map[string]any
	if err := json.NewDecoder(noteResponse.Body).Decode(&notePayload); err != nil {
		testContext.Fatalf("failed to decode note payload: %v", err)
	}
	if notePayload["text"] != "grateful for this flow" {
		testContext.Fatalf("unexpected deep-link text %v", notePayload["text"])
	}
}
