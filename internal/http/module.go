// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"github.com/gin-gonic/gin"

	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/httpkit"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the public /api/v1 route group used by the client channel.
	V1 *gin.RouterGroup
	// Protected is the reviewer-only group under /api/v1.
	Protected *gin.RouterGroup
	// Config is the JWT configuration for auth middleware.
	Config config.JWTConfig
	// AuthMiddleware validates reviewer tokens.
	AuthMiddleware gin.HandlerFunc
	// MessageRateLimiter throttles inbound client messages per IP.
	MessageRateLimiter *httpkit.IPRateLimiter
}
