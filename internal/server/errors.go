package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	label  string
}

var errorTable = []errorMapping{
	{content.ErrPostNotFound, http.StatusNotFound, "post_not_found"},
	{content.ErrCommentNotFound, http.StatusNotFound, "comment_not_found"},
	{content.ErrForbidden, http.StatusForbidden, "forbidden"},
	{content.ErrInvalidContent, http.StatusBadRequest, "invalid_content"},
	{notifications.ErrNotificationNotFound, http.StatusNotFound, "notification_not_found"},
	{users.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{users.ErrSelfRelation, http.StatusBadRequest, "self_relation"},
	{users.ErrBlocked, http.StatusForbidden, "blocked"},
	{users.ErrInvalidUser, http.StatusBadRequest, "invalid_user"},
	{moderation.ErrReportNotFound, http.StatusNotFound, "report_not_found"},
	{moderation.ErrReportableNotFound, http.StatusNotFound, "reportable_not_found"},
	{moderation.ErrInvalidReport, http.StatusBadRequest, "invalid_report"},
	{moderation.ErrForbidden, http.StatusForbidden, "forbidden"},
	{moderation.ErrReportClosed, http.StatusConflict, "report_closed"},
	{moderation.ErrReportOpen, http.StatusConflict, "report_open"},
}

// writeServiceError maps err onto a status through errorTable. Unmapped errors are logged and
// reported as internal failures.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	body := gin.H{}
	if code := svcerr.Code(err); code != "" {
		body["code"] = code
	}
	for _, mapping := range errorTable {
		if errors.Is(err, mapping.target) {
			body["error"] = mapping.label
			c.JSON(mapping.status, body)
			return
		}
	}
	h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	body["error"] = "internal_error"
	c.JSON(http.StatusInternalServerError, body)
}
