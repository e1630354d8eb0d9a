package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
)

type rejectMatchRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListMatches(c *gin.Context) {
	vendorID, caseID, ok := casePath(c)
	if !ok {
		return
	}

	matches, err := s.reconSvc.ListMatches(c.Request.Context(), caseID, vendorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": matches})
}

func (s *Server) ListLineMatches(c *gin.Context) {
	lineID, ok := pathID(c, "line_id")
	if !ok {
		return
	}

	matches, err := s.reconSvc.ListLineMatches(c.Request.Context(), lineID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": matches})
}

// CreateMatch records a reviewer-chosen pair. Without match_type the pair is
// scored by the matcher.
func (s *Server) CreateMatch(c *gin.Context) {
	var req domain.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ActorID = userID(c)

	match, err := s.reconSvc.ProposeAndCreateMatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": match})
}

func (s *Server) ProposeMatch(c *gin.Context) {
	lineID, ok := pathID(c, "line_id")
	if !ok {
		return
	}

	match, err := s.reconSvc.ProposeMatch(c.Request.Context(), lineID, userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if match == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil, "proposed": false})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": match, "proposed": true})
}

func (s *Server) ConfirmMatch(c *gin.Context) {
	matchID, ok := pathID(c, "match_id")
	if !ok {
		return
	}

	match, err := s.reconSvc.ConfirmMatch(c.Request.Context(), matchID, userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": match})
}

func (s *Server) RejectMatch(c *gin.Context) {
	matchID, ok := pathID(c, "match_id")
	if !ok {
		return
	}

	var req rejectMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	match, err := s.reconSvc.RejectMatch(c.Request.Context(), matchID, userID(c), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": match})
}
