package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/moderation"
	"github.com/gin-gonic/gin"
)

type notesPayload struct {
	Notes string `json:"notes"`
}

func (h *httpHandler) handleCreateReport(c *gin.Context) {
	var request moderation.CreateReportInput
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	report, err := h.services.Moderation.CreateReport(c.Request.Context(), currentUser(c), request)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *httpHandler) handleListReports(c *gin.Context) {
	limit, beforeID, ok := parseListQuery(c)
	if !ok {
		return
	}
	reports, err := h.services.Moderation.ListReports(c.Request.Context(), currentUser(c), moderation.ListOptions{
		PendingOnly: c.Query("pending") == "true",
		Limit:       limit,
		BeforeID:    beforeID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if reports == nil {
		reports = []moderation.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *httpHandler) handlePendingCount(c *gin.Context) {
	if !currentUser(c).CanModerate() {
		h.writeServiceError(c, moderation.ErrForbidden)
		return
	}
	count, err := h.services.Moderation.PendingCount(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_count": count})
}

func (h *httpHandler) handleGetReport(c *gin.Context) {
	reportID, ok := parseIDParam(c)
	if !ok {
		return
	}
	report, err := h.services.Moderation.GetReport(c.Request.Context(), currentUser(c), reportID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleCloseReport(c *gin.Context) {
	reportID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var request notesPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	report, err := h.services.Moderation.CloseReport(c.Request.Context(), currentUser(c), reportID, request.Notes)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleReopenReport(c *gin.Context) {
	reportID, ok := parseIDParam(c)
	if !ok {
		return
	}
	report, err := h.services.Moderation.ReopenReport(c.Request.Context(), currentUser(c), reportID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleUpdateReportNotes(c *gin.Context) {
	reportID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var request notesPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	report, err := h.services.Moderation.UpdateNotes(c.Request.Context(), currentUser(c), reportID, request.Notes)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
