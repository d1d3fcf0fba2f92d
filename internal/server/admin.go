package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gratitudedrop/backend/internal/drops"
	"github.com/gratitudedrop/backend/internal/submissions"
	"go.uber.org/zap"
)

func (h *httpHandler) requireAdminKey(c *gin.Context) {
	key := c.Query("key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.adminSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// handleAdmin is the moderation surface: query-parameter actions mutate the
// queue and redirect back to the listing, no action returns the listing
// itself. The shape mirrors the operator page the web client drives.
func (h *httpHandler) handleAdmin(c *gin.Context) {
	action := c.Query("action")
	switch action {
	case "approve":
		h.handleModerationAction(c, h.submissionsService.Approve)
	case "reject":
		h.handleModerationAction(c, h.submissionsService.Reject)
	case "unapprove":
		h.handleUnapprove(c)
	case "reorder":
		h.handleReorder(c)
	case "":
		h.handleAdminListing(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
	}
}

func (h *httpHandler) handleModerationAction(c *gin.Context, action func(context.Context, int64) error) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := action(c.Request.Context(), id); err != nil {
		h.logger.Error("moderation action failed", zap.Int64("submission_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	// The pending list just shrank; land the operator on the last page
	// that still exists rather than an empty one.
	page := parsePage(c.Query("page"))
	redirectPage, err := h.clampedPendingPage(c, page)
	if err != nil {
		h.logger.Error("pending page clamp failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/admin?key=%s&page=%d", c.Query("key"), redirectPage))
}

func (h *httpHandler) handleUnapprove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.submissionsService.Unapprove(c.Request.Context(), id); err != nil {
		h.logger.Error("unapprove failed", zap.Int64("submission_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/admin?key=%s", c.Query("key")))
}

type reorderRequestPayload struct {
	NoteIDs []int64 `json:"noteIds"`
}

func (h *httpHandler) handleReorder(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reorder requires POST"})
		return
	}

	var request reorderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.NoteIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.submissionsService.Reorder(c.Request.Context(), request.NoteIDs); err != nil {
		h.logger.Error("reorder failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type submissionPayload struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	SortOrder *int64    `json:"sortOrder,omitempty"`
	Created   time.Time `json:"created"`
}

type adminListingPayload struct {
	Pending       []submissionPayload `json:"pending"`
	TotalPending  int64               `json:"totalPending"`
	Page          int                 `json:"page"`
	TotalPages    int                 `json:"totalPages"`
	ApprovedQueue []submissionPayload `json:"approvedQueue"`
}

func (h *httpHandler) handleAdminListing(c *gin.Context) {
	requestedPage := parsePage(c.Query("page"))

	listing, err := h.submissionsService.ListPending(c.Request.Context(), requestedPage, h.pendingPageSize)
	if err != nil {
		h.logger.Error("pending listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	// A stale bookmark past the end of the listing lands back on page 1.
	if listing.TotalPages > 0 && requestedPage > listing.TotalPages {
		c.Redirect(http.StatusFound, fmt.Sprintf("/admin?key=%s&page=1", c.Query("key")))
		return
	}

	approved, err := h.submissionsService.ListApproved(c.Request.Context(), h.approvedPreview)
	if err != nil {
		h.logger.Error("approved listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	response := adminListingPayload{
		Pending:       toSubmissionPayloads(listing.Submissions),
		TotalPending:  listing.Total,
		Page:          listing.Page,
		TotalPages:    listing.TotalPages,
		ApprovedQueue: toSubmissionPayloads(approved),
	}
	c.JSON(http.StatusOK, response)
}

type deleteNoteRequestPayload struct {
	NoteID int64 `json:"noteId"`
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	var request deleteNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.NoteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Note ID is required"})
		return
	}

	err := h.dropsService.DeleteNote(c.Request.Context(), request.NoteID)
	if errors.Is(err, drops.ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	if err != nil {
		h.logger.Error("note delete failed", zap.Int64("note_id", request.NoteID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleAnalytics(c *gin.Context) {
	report, err := h.dropsService.Analytics(c.Request.Context())
	if err != nil {
		h.logger.Error("analytics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	notes := make([]gin.H, 0, len(report.Notes))
	for _, note := range report.Notes {
		notes = append(notes, gin.H{
			"id":     note.ID,
			"text":   note.Text,
			"hearts": note.Hearts,
			"dropId": note.DropID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"totalNotes":    report.TotalNotes,
		"totalHearts":   report.TotalHearts,
		"averageHearts": report.AverageHeart,
		"notes":         notes,
	})
}

func (h *httpHandler) clampedPendingPage(c *gin.Context, page int) (int, error) {
	listing, err := h.submissionsService.ListPending(c.Request.Context(), page, h.pendingPageSize)
	if err != nil {
		return 0, err
	}
	if listing.TotalPages == 0 {
		return 1, nil
	}
	return listing.Page, nil
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func toSubmissionPayloads(items []submissions.Submission) []submissionPayload {
	payloads := make([]submissionPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, submissionPayload{
			ID:        item.ID,
			Text:      item.Text,
			Status:    string(item.Status),
			SortOrder: item.SortOrder,
			Created:   item.Created,
		})
	}
	return payloads
}
