package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
)

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       resp.Invoices,
		"pagination": resp.Pagination,
		"summary":    resp.Summary,
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	var req invoicedomain.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := s.invoiceSvc.GenerateInvoices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ApplyInvoiceAction(c *gin.Context) {
	var req invoicedomain.ActionRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := s.invoiceSvc.ApplyAction(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	pdf, inv, err := s.invoiceSvc.RenderPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := slug.Make(inv.InvoiceNumber) + ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
