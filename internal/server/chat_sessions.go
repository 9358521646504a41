package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	chatdomain "github.com/smallbiznis/mystictxt/internal/chat/domain"
)

type requestSessionRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type listMessagesQuery struct {
	SinceID string `form:"since_id"`
	Limit   int    `form:"limit"`
}

func (s *Server) RequestChatSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req requestSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.chatSvc.RequestSession(c.Request.Context(), actor, chatdomain.RequestSessionRequest{
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": view})
}

func (s *Server) GetChatSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	view, err := s.chatSvc.GetSessionView(c.Request.Context(), actor, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ListChatMessages(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var query listMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	sinceID, err := parseSinceID(query.SinceID)
	if err != nil {
		AbortWithError(c, chatdomain.ErrInvalidCursor)
		return
	}

	req := chatdomain.ListMessagesRequest{
		SessionID: sessionID,
		SinceID:   sinceID,
		Limit:     query.Limit,
	}

	resp, err := s.chatSvc.ListMessages(c.Request.Context(), actor, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PostChatMessage(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	message, err := s.chatSvc.PostMessage(c.Request.Context(), actor, chatdomain.PostMessageRequest{
		SessionID: sessionID,
		Content:   req.Content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": message})
}

func (s *Server) EndChatSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	view, err := s.chatSvc.EndSession(c.Request.Context(), actor, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// GetChatPricing lists what a customer can buy right now.
func (s *Server) GetChatPricing(c *gin.Context) {
	pricing := s.pricingConfig()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"rate_per_minute_cents": pricing.RatePerMinuteCents,
		"duration_tiers":        pricing.DurationTiers,
		"credit_packages":       pricing.CreditPackages,
		"grace_warning_seconds": chatdomain.GraceWarningSeconds,
	}})
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, chatdomain.ErrInvalidSessionID)
		return 0, false
	}
	return id, true
}
