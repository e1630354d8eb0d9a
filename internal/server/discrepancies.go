package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
)

func (s *Server) ListDiscrepancies(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	items, err := s.reconSvc.ListDiscrepancies(c.Request.Context(), domain.ListDiscrepanciesRequest{
		CaseID:   caseID,
		VendorID: vendorID,
		Status:   c.Query("status"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateDiscrepancy(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}
	// the vendor scope is checked before anything is written
	if _, err := s.reconSvc.GetSummary(c.Request.Context(), caseID, vendorID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req domain.CreateDiscrepancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CaseID = caseID
	req.ActorID = userID(c)

	d, err := s.reconSvc.CreateDiscrepancy(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (s *Server) DetectDiscrepancies(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}
	if _, err := s.reconSvc.GetSummary(c.Request.Context(), caseID, vendorID); err != nil {
		AbortWithError(c, err)
		return
	}

	found, err := s.reconSvc.DetectDiscrepancies(c.Request.Context(), caseID, userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) ResolveDiscrepancy(c *gin.Context) {
	discrepancyID, ok := pathID(c, "discrepancy_id")
	if !ok {
		return
	}

	var req domain.ResolveDiscrepancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.DiscrepancyID = discrepancyID
	req.UserID = userID(c)

	d, err := s.reconSvc.ResolveDiscrepancy(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}
