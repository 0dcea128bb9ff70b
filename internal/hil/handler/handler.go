package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/service"
	"venue_booking_backend/internal/hil"
	"venue_booking_backend/internal/hil/transport"
	"venue_booking_backend/platform/httpkit"
	"venue_booking_backend/platform/validator"
)

// Handler handles the review queue.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid task id"
)

// New creates a new review handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// ListTasks returns pending review tasks, optionally for one booking.
// GET /api/v1/review/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	var req transport.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tasks, err := h.svc.ListPendingTasks(c.Request.Context(), req.ParseBookingID())
	if httpkit.HandleError(c, err) {
		return
	}
	if tasks == nil {
		tasks = []hil.Task{}
	}
	httpkit.OK(c, gin.H{"items": tasks, "total": len(tasks)})
}

// ApproveTask approves a task and sends its text.
// POST /api/v1/review/tasks/:id/approve
func (h *Handler) ApproveTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req transport.ApproveTaskRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.ApproveTask(c.Request.Context(), id, req.EditedText, identity.DisplayName())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RejectTask rejects a task. The client is only notified on request.
// POST /api/v1/review/tasks/:id/reject
func (h *Handler) RejectTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req transport.RejectTaskRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.RejectTask(c.Request.Context(), id, req.Notes, identity.DisplayName(), req.NotifyClient)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
