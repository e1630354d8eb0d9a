package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	"github.com/smallbiznis/soarecon/pkg/db/pagination"
)

type listStatementsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (s *Server) ListStatements(c *gin.Context) {
	vendorID, ok := pathID(c, "vendor_id")
	if !ok {
		return
	}

	var query listStatementsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reconSvc.ListStatements(c.Request.Context(), domain.ListStatementsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		VendorID: vendorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Statements, "page_info": resp.PageInfo})
}

func (s *Server) ListLines(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	lines, err := s.reconSvc.ListLines(c.Request.Context(), domain.ListLinesRequest{
		CaseID:   caseID,
		VendorID: vendorID,
		Status:   c.Query("status"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lines})
}

func (s *Server) GetSummary(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	sum, err := s.reconSvc.GetSummary(c.Request.Context(), caseID, vendorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sum})
}

func (s *Server) RunMatching(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	run, err := s.reconSvc.RunMatching(c.Request.Context(), domain.RunMatchingRequest{
		CaseID:   caseID,
		VendorID: vendorID,
		ActorID:  userID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}
