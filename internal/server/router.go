package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gratitudedrop/backend/internal/drops"
	"github.com/gratitudedrop/backend/internal/ratelimit"
	"github.com/gratitudedrop/backend/internal/submissions"
	"go.uber.org/zap"
)

var (
	errMissingDropsService       = errors.New("drops service dependency required")
	errMissingSubmissionsService = errors.New("submissions service dependency required")
	errMissingLimiter            = errors.New("rate limiter dependency required")
	errMissingAdminSecret        = errors.New("admin secret required")
)

// Notifier announces accepted submissions out of band.
type Notifier interface {
	Announce(text string)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	DropsService       *drops.Service
	SubmissionsService *submissions.Service
	Limiter            *ratelimit.Limiter
	Notifier           Notifier
	Clock              func() time.Time
	AdminSecret        string
	CORSOrigins        []string
	PendingPageSize    int
	ApprovedPreview    int
	Logger             *zap.Logger
}

// NewHTTPHandler assembles the gin router for the public API and the
// operator surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.DropsService == nil {
		return nil, errMissingDropsService
	}
	if deps.SubmissionsService == nil {
		return nil, errMissingSubmissionsService
	}
	if deps.Limiter == nil {
		return nil, errMissingLimiter
	}
	if deps.AdminSecret == "" {
		return nil, errMissingAdminSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	pendingPageSize := deps.PendingPageSize
	if pendingPageSize <= 0 {
		pendingPageSize = 10
	}
	approvedPreview := deps.ApprovedPreview
	if approvedPreview <= 0 {
		approvedPreview = 20
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(deps.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		dropsService:       deps.DropsService,
		submissionsService: deps.SubmissionsService,
		limiter:            deps.Limiter,
		notifier:           deps.Notifier,
		clock:              clock,
		adminSecret:        deps.AdminSecret,
		pendingPageSize:    pendingPageSize,
		approvedPreview:    approvedPreview,
		logger:             logger,
	}

	router.GET("/api/drop", handler.handleGetDrop)
	router.POST("/api/heart", handler.handleHeart)
	router.POST("/api/unheart", handler.handleUnheart)
	router.POST("/api/submit", handler.handleSubmit)
	router.GET("/api/note/:id", handler.handleGetNote)

	admin := router.Group("/admin")
	admin.Use(handler.requireAdminKey)
	admin.GET("", handler.handleAdmin)
	admin.POST("", handler.handleAdmin)
	admin.POST("/delete-note", handler.handleDeleteNote)
	admin.GET("/analytics", handler.handleAnalytics)

	return router, nil
}

// allowedOrigins extends the configured allow-list with the local
// development origins the web client runs on.
func allowedOrigins(configured []string) []string {
	origins := make([]string, 0, len(configured)+2)
	origins = append(origins, configured...)
	origins = append(origins, "http://localhost:3000", "http://127.0.0.1:3000")
	return origins
}

type httpHandler struct {
	dropsService       *drops.Service
	submissionsService *submissions.Service
	limiter            *ratelimit.Limiter
	notifier           Notifier
	clock              func() time.Time
	adminSecret        string
	pendingPageSize    int
	approvedPreview    int
	logger             *zap.Logger
}

func (h *httpHandler) handleGetDrop(c *gin.Context) {
	payload, err := h.dropsService.GetDrop(c.Request.Context(), h.clock())
	if err != nil {
		h.logger.Error("failed to serve drop", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

type heartRequestPayload struct {
	NoteID int64 `json:"noteId"`
}

func (h *httpHandler) handleHeart(c *gin.Context) {
	var request heartRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.NoteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.dropsService.Heart(c.Request.Context(), request.NoteID); err != nil {
		h.logger.Error("heart failed", zap.Int64("note_id", request.NoteID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleUnheart(c *gin.Context) {
	var request heartRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.NoteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.dropsService.Unheart(c.Request.Context(), request.NoteID); err != nil {
		h.logger.Error("unheart failed", zap.Int64("note_id", request.NoteID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type submitRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	var request submitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid text length"})
		return
	}
	if err := submissions.ValidateText(request.Text); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid text length"})
		return
	}

	if !h.limiter.Allow(c.ClientIP(), h.clock()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
		return
	}

	if _, err := h.submissionsService.Create(c.Request.Context(), request.Text); err != nil {
		h.logger.Error("submission create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	if h.notifier != nil {
		// Fire and forget; a broken channel must never fail the submission.
		go h.notifier.Announce(request.Text)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid note ID"})
		return
	}

	note, err := h.dropsService.GetNote(c.Request.Context(), noteID)
	if errors.Is(err, drops.ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	if err != nil {
		h.logger.Error("note lookup failed", zap.Int64("note_id", noteID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": note.ID, "text": note.Text, "hearts": note.Hearts})
}
