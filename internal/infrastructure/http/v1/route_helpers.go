package v1

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/infrastructure/http/v1/middleware"
)

// Route binds one endpoint to the permission it requires.
type Route struct {
	Method     string
	Path       string
	Permission string
	Handler    gin.HandlerFunc
}

// RegisterRoutes mounts routes on group, each behind its permission check.
//
// Usage:
//
//	RegisterRoutes(api.Group("/serials"), []Route{
//		{http.MethodGet, "/:code", middleware.PermSerialsRead, serialHandler.Get},
//	})
func RegisterRoutes(group *gin.RouterGroup, routes []Route) {
	for _, r := range routes {
		group.Handle(r.Method, r.Path, middleware.RequirePermission(r.Permission), r.Handler)
	}
}
