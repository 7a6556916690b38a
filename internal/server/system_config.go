package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
)

func (s *Server) ListSystemConfig(c *gin.Context) {
	entries, err := s.systemConfigSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) UpdateSystemConfig(c *gin.Context) {
	var req systemconfigdomain.SetRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := actorcontext.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	entry, err := s.systemConfigSvc.Set(c.Request.Context(), actor, c.Param("key"), req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}
