package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/service"
	"venue_booking_backend/internal/conversation/transport"
	"venue_booking_backend/platform/httpkit"
	"venue_booking_backend/platform/validator"
)

// Handler handles HTTP requests for bookings and client messages.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid booking id"
)

// New creates a new conversation handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SendMessage runs one turn for a client message.
// POST /api/v1/bookings/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ProcessMessage(c.Request.Context(), id, req.Message)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetBooking returns the booking record with its audit log.
// GET /api/v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	rec, err := h.svc.GetBooking(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	resp, err := transport.ToBookingResponse(rec)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// ListBookings lists bookings by thread state.
// GET /api/v1/bookings
func (h *Handler) ListBookings(c *gin.Context) {
	var req transport.ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	state := domain.ThreadWaitingOnReview
	if req.ThreadState != "" {
		state = domain.ThreadState(req.ThreadState)
	}

	items, err := h.svc.ListBookings(c.Request.Context(), state, req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	resp, err := transport.ToBookingListResponse(items)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// MarkDepositPaid records the deposit payment and continues the booking.
// POST /api/v1/bookings/:id/deposit-paid
func (h *Handler) MarkDepositPaid(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	result, err := h.svc.MarkDepositPaid(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}
