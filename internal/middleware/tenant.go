package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
	"github.com/prestafacil/loandocs-api/pkg/response"
)

// ContextTenantKey stores the tenant identifier on the request context.
const ContextTenantKey = "tenant_id"

// TenantHeader is the header the upstream gateway resolves tenants into.
// The engine treats the value as an opaque isolation key.
const TenantHeader = "X-Tenant-ID"

// Tenant requires a tenant identifier on every request and stores it on the
// context for handlers.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			response.Error(c, appErrors.ErrTenantRequired)
			c.Abort()
			return
		}
		c.Set(ContextTenantKey, tenantID)
		c.Next()
	}
}

// TenantFromContext returns the tenant stored by the Tenant middleware.
func TenantFromContext(c *gin.Context) string {
	if v, exists := c.Get(ContextTenantKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
