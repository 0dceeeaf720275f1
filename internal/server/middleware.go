package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/ledgercore/internal/observability/context"
	"github.com/smallbiznis/ledgercore/internal/orgcontext"
)

const (
	HeaderOrg       = "X-Org-Id"
	contextOrgIDKey = "org_id"
)

// OrgContext resolves the tenant from the X-Org-Id header. Every /api route
// requires it.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgcontext.ParseOrgID(c.GetHeader(HeaderOrg))
		if !ok {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "X-Org-Id header must carry a tenant id"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

func tenantID(c *gin.Context) snowflake.ID {
	id, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	return id
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return *id, true
}
