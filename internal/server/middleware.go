package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	obslogger "github.com/smallbiznis/soarecon/internal/observability/logger"
)

// userID is the acting user. Authentication happens upstream; the adapter
// only forwards the header.
func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(obslogger.HeaderUserID))
}

// pathID parses a snowflake path parameter. A malformed id is a validation
// error naming the parameter.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return *id, true
}

// casePath reads the vendor and case ids of a statement route.
func casePath(c *gin.Context) (vendorID, caseID snowflake.ID, ok bool) {
	vendorID, ok = pathID(c, "vendor_id")
	if !ok {
		return 0, 0, false
	}
	caseID, ok = pathID(c, "case_id")
	if !ok {
		return 0, 0, false
	}
	return vendorID, caseID, true
}
