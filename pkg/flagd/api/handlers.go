// Package api is the HTTP surface of the flagging engine.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/engine"
	"github.com/mikepea/flagd/pkg/flagd/ledger"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
)

// Handler handles flag-related requests
type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewHandler creates a new flags handler
func NewHandler(e *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, logger: logger.With("system", "api")}
}

// RegisterRoutes registers the flag routes. The group must run auth.Middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/flags/:type/:id", h.Get)
	r.GET("/flags/:type/:id/confirm", h.Confirm)
	r.POST("/flags", h.Create)
	r.GET("/flags/:type/:id/events", auth.RequireStaff(), h.ListEvents)
}

// RegisterAdminRoutes registers moderation routes. The group must run
// auth.Middleware and auth.RequireStaff.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/flags", h.Queue)
	r.PUT("/flags/:type/:id/status", h.UpdateStatus)
}

// CreateFlagRequest represents the request to flag a content item
type CreateFlagRequest struct {
	ContentType  string `json:"content_type" binding:"required"`
	ObjectID     uint   `json:"object_id" binding:"required"`
	CreatorField string `json:"creator_field"`
	Comment      string `json:"comment"`
	Status       *int   `json:"status"`
}

// UpdateStatusRequest represents a moderator status change
type UpdateStatusRequest struct {
	Status int `json:"status" binding:"required"`
}

// FlagInfoResponse summarizes the flags on a content item
type FlagInfoResponse struct {
	ContentType string          `json:"content_type"`
	ObjectID    uint            `json:"object_id"`
	Count       uint            `json:"count"`
	Status      *ledger.Status  `json:"status"`
	CanFlag     bool            `json:"can_flag"`
	Flagged     bool            `json:"flagged"`
	Options     *ConfirmOptions `json:"options,omitempty"`
}

// ConfirmOptions tells a client how to present the flag form
type ConfirmOptions struct {
	AllowComments bool                    `json:"allow_comments"`
	Statuses      []settings.StatusChoice `json:"statuses,omitempty"`
	DefaultStatus int                     `json:"default_status"`
}

// FlagEventResponse represents one flag in API responses
type FlagEventResponse struct {
	ID        uint    `json:"id"`
	UserID    uint    `json:"user_id"`
	UserName  string  `json:"user_name,omitempty"`
	Comment   *string `json:"comment,omitempty"`
	Status    int     `json:"status"`
	WhenAdded string  `json:"when_added"`
}

// LedgerResponse represents a ledger entry in API responses
type LedgerResponse struct {
	ID          uint   `json:"id"`
	ContentType string `json:"content_type"`
	ObjectID    uint   `json:"object_id"`
	Count       uint   `json:"count"`
	Status      int    `json:"status"`
	StatusLabel string `json:"status_label"`
	CreatorID   *uint  `json:"creator_id,omitempty"`
	ModeratorID *uint  `json:"moderator_id,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// QueueResponse is a page of the moderation queue
type QueueResponse struct {
	Total int64            `json:"total"`
	Items []LedgerResponse `json:"items"`
}

const timeFormat = "2006-01-02T15:04:05Z"

func eventToResponse(ev models.FlagEvent) FlagEventResponse {
	return FlagEventResponse{
		ID:        ev.ID,
		UserID:    ev.UserID,
		UserName:  ev.User.Name,
		Comment:   ev.Comment,
		Status:    ev.Status,
		WhenAdded: ev.WhenAdded.UTC().Format(timeFormat),
	}
}

func ledgerToResponse(e models.FlaggedContent, label string) LedgerResponse {
	return LedgerResponse{
		ID:          e.ID,
		ContentType: e.ContentType,
		ObjectID:    e.ObjectID,
		Count:       e.Count,
		Status:      e.Status,
		StatusLabel: label,
		CreatorID:   e.CreatorID,
		ModeratorID: e.ModeratorID,
		UpdatedAt:   e.UpdatedAt.UTC().Format(timeFormat),
	}
}

func pathInput(c *gin.Context) content.Input {
	return content.Parse(c.Param("type"), c.Param("id"))
}

func (h *Handler) confirmOptions(user auth.User, contentType string) *ConfirmOptions {
	opts := h.engine.Options(contentType)
	co := &ConfirmOptions{AllowComments: opts.AllowComments, DefaultStatus: opts.DefaultStatus}
	if user.Staff || opts.StatusChoiceForFlaggers {
		co.Statuses = opts.Statuses
	}
	return co
}

// Get godoc
// @Summary Get flag summary
// @Description Get the flag count and current status of a content item
// @Tags flags
// @Produce json
// @Param type path string true "Content type (app.model or numeric id)"
// @Param id path int true "Object ID"
// @Success 200 {object} FlagInfoResponse
// @Failure 400 {object} map[string]string "Unknown content"
// @Security BearerAuth
// @Router /flags/{type}/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	user, _ := auth.Current(c)
	ref, err := h.engine.Ref(pathInput(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	l := h.engine.Ledger()
	count, err := l.FlagCount(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := FlagInfoResponse{ContentType: ref.Type, ObjectID: ref.ObjectID, Count: count}
	st, ok, err := l.FlagStatus(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if ok {
		resp.Status = &st
		resp.Flagged = true
	}
	resp.CanFlag = h.engine.CanFlag(c.Request.Context(), user, content.ByName(ref.Type, ref.ObjectID))

	c.JSON(http.StatusOK, resp)
}

// Confirm godoc
// @Summary Check before flagging
// @Description Run the checks made before a flag form is shown
// @Tags flags
// @Produce json
// @Param type path string true "Content type (app.model or numeric id)"
// @Param id path int true "Object ID"
// @Success 200 {object} FlagInfoResponse
// @Failure 400 {object} map[string]string "Cannot flag"
// @Security BearerAuth
// @Router /flags/{type}/{id}/confirm [get]
func (h *Handler) Confirm(c *gin.Context) {
	user, _ := auth.Current(c)
	ref, err := h.engine.Confirm(c.Request.Context(), user, pathInput(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	count, err := h.engine.Ledger().FlagCount(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, FlagInfoResponse{
		ContentType: ref.Type,
		ObjectID:    ref.ObjectID,
		Count:       count,
		CanFlag:     true,
		Flagged:     count > 0,
		Options:     h.confirmOptions(user, ref.Type),
	})
}

// Create godoc
// @Summary Flag a content item
// @Description Record a flag on a content item
// @Tags flags
// @Accept json
// @Produce json
// @Param request body CreateFlagRequest true "Flag details"
// @Success 201 {object} FlagEventResponse
// @Failure 400 {object} map[string]string "Cannot flag"
// @Failure 403 {object} map[string]string "Status choice not allowed"
// @Security BearerAuth
// @Router /flags [post]
func (h *Handler) Create(c *gin.Context) {
	user, _ := auth.Current(c)

	var req CreateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := content.Parse(req.ContentType, strconv.FormatUint(uint64(req.ObjectID), 10))
	if req.Status != nil {
		ref, err := h.engine.Ref(in)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if !h.engine.Options(ref.Type).HasStatus(*req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "code": "invalid_status"})
			return
		}
	}

	ev, err := h.engine.Flag(c.Request.Context(), engine.FlagRequest{
		User:         user,
		Content:      in,
		CreatorField: req.CreatorField,
		Comment:      req.Comment,
		Status:       req.Status,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	ev.User = models.User{ID: user.ID, Name: user.Name}
	c.JSON(http.StatusCreated, eventToResponse(*ev))
}

// ListEvents godoc
// @Summary List flags on a content item
// @Description Get the individual flags on a content item, most recent first
// @Tags flags
// @Produce json
// @Param type path string true "Content type (app.model or numeric id)"
// @Param id path int true "Object ID"
// @Param limit query int false "Maximum number of flags"
// @Success 200 {array} FlagEventResponse
// @Failure 403 {object} map[string]string "Staff access required"
// @Security BearerAuth
// @Router /flags/{type}/{id}/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	ref, err := h.engine.Ref(pathInput(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	evs, err := h.engine.Ledger().Events(c.Request.Context(), ref, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]FlagEventResponse, len(evs))
	for i, ev := range evs {
		resp[i] = eventToResponse(ev)
	}
	c.JSON(http.StatusOK, resp)
}

// Queue godoc
// @Summary Moderation queue
// @Description List flagged content, most recently updated first
// @Tags admin
// @Produce json
// @Param content_type query string false "Filter by content type"
// @Param status query int false "Filter by status"
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Page offset"
// @Success 200 {object} QueueResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Security BearerAuth
// @Router /admin/flags [get]
func (h *Handler) Queue(c *gin.Context) {
	f := store.ListFilter{ContentType: c.Query("content_type"), Limit: 50}
	if s := c.Query("status"); s != "" {
		status, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		f.Status = &status
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		f.Limit = limit
	}
	if s := c.Query("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		f.Offset = offset
	}

	items, total, err := h.engine.Ledger().Queue(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := QueueResponse{Total: total, Items: make([]LedgerResponse, len(items))}
	for i, it := range items {
		resp.Items[i] = ledgerToResponse(it.FlaggedContent, it.StatusLabel)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateStatus godoc
// @Summary Change flag status
// @Description Set the moderation status of a flagged content item
// @Tags admin
// @Accept json
// @Produce json
// @Param type path string true "Content type (app.model or numeric id)"
// @Param id path int true "Object ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} LedgerResponse
// @Failure 400 {object} map[string]string "Invalid status"
// @Failure 404 {object} map[string]string "Never flagged"
// @Security BearerAuth
// @Router /admin/flags/{type}/{id}/status [put]
func (h *Handler) UpdateStatus(c *gin.Context) {
	user, _ := auth.Current(c)
	ref, err := h.engine.Ref(pathInput(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts := h.engine.Options(ref.Type)
	if !opts.HasStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "code": "invalid_status"})
		return
	}

	entry, err := h.engine.ChangeStatus(c.Request.Context(), user, content.ByName(ref.Type, ref.ObjectID), req.Status)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content has never been flagged"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledgerToResponse(*entry, opts.StatusLabel(entry.Status)))
}
