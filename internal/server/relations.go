package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleFollow(c *gin.Context) {
	followeeID, ok := parseIDParam(c)
	if !ok {
		return
	}
	created, err := h.services.Users.Follow(c.Request.Context(), currentUser(c).ID, followeeID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"following": true})
}

func (h *httpHandler) handleUnfollow(c *gin.Context) {
	followeeID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.services.Users.Unfollow(c.Request.Context(), currentUser(c).ID, followeeID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleBlock(c *gin.Context) {
	blockedID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if _, err := h.services.Users.GetByID(c.Request.Context(), blockedID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := h.services.Users.Block(c.Request.Context(), currentUser(c).ID, blockedID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

func (h *httpHandler) handleUnblock(c *gin.Context) {
	blockedID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.services.Users.Unblock(c.Request.Context(), currentUser(c).ID, blockedID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
