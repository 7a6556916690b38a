package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/adbilling/internal/payment/domain"
)

func (s *Server) ListPayments(c *gin.Context) {
	var req paymentdomain.ListPaymentRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       resp.Payments,
		"pagination": resp.Pagination,
		"summary":    resp.Summary,
	})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	item, err := s.paymentSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req paymentdomain.CreatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := s.paymentSvc.CreatePayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdatePaymentStatus(c *gin.Context) {
	var req paymentdomain.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	change, err := s.paymentSvc.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": change})
}
