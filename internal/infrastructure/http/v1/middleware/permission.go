package middleware

import (
	"github.com/gin-gonic/gin"

	"traceledger/internal/core/apperror"
	appctx "traceledger/internal/core/context"
)

// Permissions checked by the API.
const (
	PermIdentifiersAllocate = "identifiers:allocate"
	PermSerialsRead         = "serials:read"
	PermSerialsTransition   = "serials:transition"
	PermLedgerWrite         = "ledger:write"
	PermLedgerCompensate    = "ledger:compensate"
	PermStockRead           = "stock:read"
	PermTraceRead           = "trace:read"
	PermAdminCounters       = "admin:counters"
)

// RequirePermission aborts unless the principal carries permission or the
// "*" wildcard.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := appctx.GetPrincipal(c.Request.Context())
		if p == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !p.HasPermission(permission) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_permission", permission),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAnyPermission aborts unless the principal carries one of permissions.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := appctx.GetPrincipal(c.Request.Context())
		if p == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		for _, perm := range permissions {
			if p.HasPermission(perm) {
				c.Next()
				return
			}
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_permissions", permissions),
		)
		c.Abort()
	}
}
