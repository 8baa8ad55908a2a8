package notify

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/logging"
	"github.com/mbd888/homeescrow/internal/pagination"
)

// Handler serves the caller's notification inbox.
type Handler struct {
	store Store
}

// NewHandler creates a new notification handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up inbox routes. The group must require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkRead)
}

// List handles GET /notifications?unread=true&page=1&limit=20
func (h *Handler) List(c *gin.Context) {
	user, _ := auth.CurrentUser(c)

	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	unreadOnly := c.Query("unread") == "true"

	items, total, err := h.store.ListByRecipient(c.Request.Context(), user.ID.String(), unreadOnly, page)
	if err != nil {
		logging.L(c.Request.Context()).Error("list notifications failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to load notifications"})
		return
	}
	unread, err := h.store.CountUnread(c.Request.Context(), user.ID.String())
	if err != nil {
		logging.L(c.Request.Context()).Error("count unread failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to load notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": pagination.NewResult(items, page, total),
		"unread":        unread,
	})
}

// MarkRead handles POST /notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	user, _ := auth.CurrentUser(c)

	err := h.store.MarkRead(c.Request.Context(), c.Param("id"), user.ID.String(), time.Now())
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Notification not found"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("mark notification read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
