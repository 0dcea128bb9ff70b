// Package conversation provides the booking conversation bounded context module.
package conversation

import (
	"venue_booking_backend/internal/conversation/handler"
	"venue_booking_backend/internal/conversation/service"
	apphttp "venue_booking_backend/internal/http"
	"venue_booking_backend/platform/validator"
)

// Module is the conversation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the conversation module around an initialized service.
func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts booking routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Client channel
	messages := ctx.V1.Group("/bookings")
	if ctx.MessageRateLimiter != nil {
		messages.Use(ctx.MessageRateLimiter.RateLimit())
	}
	messages.POST("/:id/messages", m.handler.SendMessage)

	// Staff endpoints
	ctx.Protected.GET("/bookings", m.handler.ListBookings)
	ctx.Protected.GET("/bookings/:id", m.handler.GetBooking)
	ctx.Protected.POST("/bookings/:id/deposit-paid", m.handler.MarkDepositPaid)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
