package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return false
	}
	return true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		AbortWithError(c, invalidRequestError(err))
		return false
	}
	return true
}

func wantsXLSX(c *gin.Context) bool {
	return strings.EqualFold(strings.TrimSpace(c.Query("format")), "xlsx")
}
