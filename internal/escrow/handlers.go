package escrow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/documents"
	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/logging"
	"github.com/mbd888/homeescrow/internal/pagination"
	"github.com/mbd888/homeescrow/internal/validation"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "5"

// defaultVolumeWindow is used when /escrow/volumes gets no range.
const defaultVolumeWindow = 30 * 24 * time.Hour

// RegisterValidators installs the escrow binding tags on gin's validator.
func RegisterValidators() error {
	return validation.RegisterTags(map[string]validator.Func{
		"payment_method": func(fl validator.FieldLevel) bool {
			return PaymentMethod(fl.Field().String()).Valid()
		},
		"escrow_status": func(fl validator.FieldLevel) bool {
			_, err := ParseStatus(fl.Field().String())
			return err == nil
		},
		"resolution": func(fl validator.FieldLevel) bool {
			return Resolution(fl.Field().String()).Valid()
		},
	})
}

// StatusRequest asks for a status change.
type StatusRequest struct {
	Status Status `json:"status" binding:"required,escrow_status"`
	Notes  string `json:"notes" binding:"max=2000"`
}

// UploadURLRequest asks for a presigned document upload slot.
type UploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required,max=255"`
	ContentType string `json:"contentType" binding:"max=128"`
}

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	service   *Service
	presigner documents.Presigner
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithPresigner enables presigned document uploads.
func (h *Handler) WithPresigner(p documents.Presigner) *Handler {
	h.presigner = p
	return h
}

// RegisterRoutes sets up escrow routes. The group must require auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrow", h.Create)
	r.GET("/escrow", h.List)
	r.GET("/escrow/stats", auth.RequireAdmin(), h.Statistics)
	r.GET("/escrow/volumes", auth.RequireAdmin(), h.Volumes)

	tx := r.Group("/escrow/:id", validation.UUIDParamMiddleware("id"))
	tx.GET("", h.Get)
	tx.GET("/timeline", h.Timeline)
	tx.POST("/status", h.UpdateStatus)
	tx.POST("/dispute", h.FileDispute)
	tx.POST("/resolve", h.ResolveDispute)
	tx.POST("/documents", h.AddDocument)
	tx.POST("/documents/upload-url", h.UploadURL)
}

// Create handles POST /v1/escrow
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if !bind(c, &req) {
		return
	}
	tx, err := h.service.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// Get handles GET /v1/escrow/:id
func (h *Handler) Get(c *gin.Context) {
	tx, err := h.service.GetForActor(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Timeline handles GET /v1/escrow/:id/timeline
func (h *Handler) Timeline(c *gin.Context) {
	tx, err := h.service.GetForActor(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timeline": tx.Timeline,
		"statuses": ReplayStatus(tx.Timeline),
	})
}

// List handles GET /v1/escrow?page=1&limit=20&status=active&propertyId=p1&role=buyer
func (h *Handler) List(c *gin.Context) {
	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	f := ListFilter{PropertyID: c.Query("propertyId")}
	if s := c.Query("status"); s != "" {
		if f.Status, err = ParseStatus(s); err != nil {
			writeError(c, err)
			return
		}
	}
	switch role := ParticipantRole(c.Query("role")); role {
	case RoleNone:
	case RoleBuyer, RoleSeller:
		f.Side = role
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "role must be buyer or seller"})
		return
	}
	if p := c.Query("participant"); p != "" {
		if id, ok := identity.Normalize(p); ok {
			f.Participants = []identity.ID{id}
		}
	}

	res, err := h.service.List(c.Request.Context(), f, page, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UpdateStatus handles POST /v1/escrow/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if !bind(c, &req) {
		return
	}
	tx, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actorFrom(c), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// FileDispute handles POST /v1/escrow/:id/dispute
func (h *Handler) FileDispute(c *gin.Context) {
	var req DisputeRequest
	if !bind(c, &req) {
		return
	}
	tx, err := h.service.FileDispute(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ResolveDispute handles POST /v1/escrow/:id/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req ResolveRequest
	if !bind(c, &req) {
		return
	}
	tx, err := h.service.ResolveDispute(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// AddDocument handles POST /v1/escrow/:id/documents
func (h *Handler) AddDocument(c *gin.Context) {
	var req DocumentRequest
	if !bind(c, &req) {
		return
	}
	tx, err := h.service.AddDocument(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// UploadURL handles POST /v1/escrow/:id/documents/upload-url
func (h *Handler) UploadURL(c *gin.Context) {
	if h.presigner == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "documents_disabled",
			"message": "Document uploads are not configured",
		})
		return
	}
	var req UploadURLRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	tx, err := h.service.GetForActor(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	upload, err := h.presigner.PresignUpload(ctx, tx.ID, req.FileName, req.ContentType)
	if errors.Is(err, documents.ErrInvalidFileName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	if err != nil {
		logging.L(ctx).Error("presign upload failed", "transaction_id", tx.ID, "error", err)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   KindUpstreamUnavailable.String(),
			"message": "Document storage unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload": upload})
}

// Statistics handles GET /v1/escrow/stats
func (h *Handler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// Volumes handles GET /v1/escrow/volumes?from=2026-01-01&to=2026-01-31
// Both dates are inclusive.
func (h *Handler) Volumes(c *gin.Context) {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.Add(-defaultVolumeWindow)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(dayLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "from must be YYYY-MM-DD"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(dayLayout, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "to must be YYYY-MM-DD"})
			return
		}
	}

	volumes, err := h.service.VolumesByDate(c.Request.Context(), from, to.Add(24*time.Hour))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from.Format(dayLayout),
		"to":      to.Format(dayLayout),
		"volumes": volumes,
	})
}

func actorFrom(c *gin.Context) Actor {
	user, _ := auth.CurrentUser(c)
	return ActorFromUser(user)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		errs := validation.FromBindError(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   KindValidation.String(),
			"message": errs.Error(),
			"details": errs,
		})
		return false
	}
	return true
}

// httpStatus maps an error kind to its HTTP status.
func httpStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict, KindDisputeAlreadyFiled, KindDuplicateActiveEscrow:
		return http.StatusConflict
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindValidation, KindSelfDealing:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := httpStatus(kind)
	body := gin.H{"error": kind.String(), "message": err.Error()}

	var te *TransitionError
	if errors.As(err, &te) {
		body["currentStatus"] = te.From
		body["requestedStatus"] = te.To
		if te.Op == "update_status" {
			body["allowed"] = NextStatuses(te.From)
		}
	}
	var ae *AuthError
	if errors.As(err, &ae) && len(ae.Required) > 0 {
		body["required"] = ae.Required
	}
	if IsRetryable(err) {
		body["retryable"] = true
	}

	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", retryAfterSeconds)
		logging.L(c.Request.Context()).Warn("escrow dependency unavailable", "error", err)
		body["message"] = "A dependency is temporarily unavailable, retry shortly"
	case http.StatusInternalServerError:
		logging.L(c.Request.Context()).Error("escrow operation failed", "error", err)
		body["message"] = "Internal error"
	}
	c.JSON(status, body)
}
