package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	signoffdomain "github.com/smallbiznis/soarecon/internal/signoff/domain"
)

func (s *Server) SignOff(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	var req signoffdomain.SignOffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CaseID = caseID
	req.VendorID = vendorID
	req.UserID = userID(c)

	ack, err := s.signoffSvc.SignOff(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ack})
}

func (s *Server) GetAcknowledgement(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	ack, err := s.signoffSvc.GetAcknowledgement(c.Request.Context(), caseID, vendorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ack})
}
