// Package server exposes the domain services over HTTP and streams live counters over SSE.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/app"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userContextKey           = "pulse_user"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingServices         = errors.New("services dependency required")
	errMissingRealtime         = errors.New("realtime subscriber dependency required")
)

// SessionValidator authenticates requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver maps session claims onto canonical users.
type UserResolver interface {
	ResolveUser(ctx context.Context, claims auth.SessionClaims) (users.User, error)
}

// Subscriber opens live-event streams on a channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan realtime.Message, func())
}

// Dependencies describes everything the HTTP handler needs.
type Dependencies struct {
	Sessions          SessionValidator
	Services          *app.Services
	Realtime          Subscriber
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine with every route registered.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Services == nil {
		return nil, errMissingServices
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		resolver:  deps.Services.Users,
		services:  deps.Services,
		realtime:  deps.Realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/me", handler.handleMe)

	protected.POST("/posts", handler.handleCreatePost)
	protected.GET("/posts/:id", handler.handleGetPost)
	protected.PATCH("/posts/:id", handler.handleUpdatePost)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.GET("/posts/:id/comments", handler.handleListComments)
	protected.POST("/posts/:id/comments", handler.handleCreateComment)
	protected.PATCH("/comments/:id", handler.handleUpdateComment)
	protected.DELETE("/comments/:id", handler.handleDeleteComment)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.GET("/notifications/unread-count", handler.handleUnreadCount)
	protected.POST("/notifications/read-all", handler.handleMarkAllRead)
	protected.POST("/notifications/:id/read", handler.handleMarkRead)

	protected.POST("/users/:id/follow", handler.handleFollow)
	protected.DELETE("/users/:id/follow", handler.handleUnfollow)
	protected.POST("/users/:id/block", handler.handleBlock)
	protected.DELETE("/users/:id/block", handler.handleUnblock)

	protected.POST("/reports", handler.handleCreateReport)
	protected.GET("/reports", handler.handleListReports)
	protected.GET("/reports/pending-count", handler.handlePendingCount)
	protected.GET("/reports/:id", handler.handleGetReport)
	protected.POST("/reports/:id/close", handler.handleCloseReport)
	protected.POST("/reports/:id/reopen", handler.handleReopenReport)
	protected.PATCH("/reports/:id/notes", handler.handleUpdateReportNotes)

	protected.GET("/stream", handler.handleStream)

	return router, nil
}

type httpHandler struct {
	sessions  SessionValidator
	resolver  UserResolver
	services  *app.Services
	realtime  Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.resolver.ResolveUser(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("user resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func (h *httpHandler) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func currentUser(c *gin.Context) users.User {
	value, _ := c.Get(userContextKey)
	user, _ := value.(users.User)
	return user
}

func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func parseListQuery(c *gin.Context) (limit int, beforeID uint64, ok bool) {
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := c.Query("before"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor"})
			return 0, 0, false
		}
		beforeID = parsed
	}
	return limit, beforeID, true
}
