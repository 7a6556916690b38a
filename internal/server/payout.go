package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	payoutdomain "github.com/smallbiznis/adbilling/internal/payout/domain"
)

func (s *Server) ListPayouts(c *gin.Context) {
	var req earningdomain.ListEarningRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.earningSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       resp.Earnings,
		"pagination": resp.Pagination,
		"summary":    resp.Summary,
	})
}

func (s *Server) GetPayoutByID(c *gin.Context) {
	item, err := s.earningSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ApplyPayoutAction(c *gin.Context) {
	var req payoutdomain.ActionRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := s.payoutSvc.ApplyAction(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GenerateEarnings(c *gin.Context) {
	var req earningdomain.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := s.earningSvc.GenerateEarnings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetPartnerSummary(c *gin.Context) {
	var req earningdomain.SummaryRequest
	if !bindQuery(c, &req) {
		return
	}

	summary, err := s.earningSvc.PartnerSummary(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
