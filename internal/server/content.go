package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/content"
	"github.com/gin-gonic/gin"
)

type bodyPayload struct {
	Body string `json:"body"`
}

type postResponse struct {
	content.Post
	Hashtags []string `json:"hashtags"`
}

func (h *httpHandler) bindBody(c *gin.Context) (string, bool) {
	var request bodyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", false
	}
	return request.Body, true
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	body, ok := h.bindBody(c)
	if !ok {
		return
	}
	post, err := h.services.Content.CreatePost(c.Request.Context(), currentUser(c), body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	post, err := h.services.Content.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	tags, err := h.services.Hashtags.TagsForPost(c.Request.Context(), postID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, postResponse{Post: post, Hashtags: tags})
}

func (h *httpHandler) handleUpdatePost(c *gin.Context) {
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	body, ok := h.bindBody(c)
	if !ok {
		return
	}
	post, err := h.services.Content.UpdatePost(c.Request.Context(), currentUser(c), postID, body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.services.Content.DeletePost(c.Request.Context(), currentUser(c), postID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if _, err := h.services.Content.GetPost(c.Request.Context(), postID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	comments, err := h.services.Content.ListComments(c.Request.Context(), postID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if comments == nil {
		comments = []content.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	body, ok := h.bindBody(c)
	if !ok {
		return
	}
	comment, err := h.services.Content.CreateComment(c.Request.Context(), currentUser(c), postID, body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleUpdateComment(c *gin.Context) {
	commentID, ok := parseIDParam(c)
	if !ok {
		return
	}
	body, ok := h.bindBody(c)
	if !ok {
		return
	}
	comment, err := h.services.Content.UpdateComment(c.Request.Context(), currentUser(c), commentID, body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	commentID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.services.Content.DeleteComment(c.Request.Context(), currentUser(c), commentID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
