// Package review provides the reviewer-facing module for the HIL task queue.
package review

import (
	"venue_booking_backend/internal/conversation/service"
	"venue_booking_backend/internal/hil/handler"
	apphttp "venue_booking_backend/internal/http"
	"venue_booking_backend/platform/validator"
)

// Module mounts the review queue routes.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the review module.
func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "review"
}

// RegisterRoutes mounts review routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/review/tasks")
	group.GET("", m.handler.ListTasks)
	group.POST("/:id/approve", m.handler.ApproveTask)
	group.POST("/:id/reject", m.handler.RejectTask)
}

var _ apphttp.Module = (*Module)(nil)
