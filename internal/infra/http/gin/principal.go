package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staysane/internal/app/authz"
	"staysane/internal/domain/user"
)

// Identity is asserted by the API gateway in front of this service.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

// PrincipalMiddleware copies the caller identity headers into the request
// context. Requests without them continue anonymously.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id == "" {
			c.Next()
			return
		}
		role, err := user.ParseRole(c.GetHeader(UserRoleHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: err.Error()})
			return
		}
		p := authz.Principal{UserID: user.ID(id), Role: role}
		c.Request = c.Request.WithContext(authz.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) (authz.Principal, bool) {
	return authz.FromContext(c.Request.Context())
}

// requireRole aborts with 401 or 403 unless the caller has role. An empty
// role accepts any authenticated caller.
func requireRole(c *gin.Context, role user.Role) (authz.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "auth required"})
		return authz.Principal{}, false
	}
	if role != "" && p.Role != role {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: "forbidden", Error: "insufficient permissions"})
		return authz.Principal{}, false
	}
	return p, true
}
