package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) GetReport(c *gin.Context) {
	var req reportingdomain.ReportRequest
	if !bindQuery(c, &req) {
		return
	}
	req.Type = c.Param("type")

	if wantsXLSX(c) {
		data, filename, err := s.reportSvc.Export(c.Request.Context(), req)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, xlsxContentType, data)
		return
	}

	report, err := s.reportSvc.Report(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
