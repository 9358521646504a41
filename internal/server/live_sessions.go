package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	chatdomain "github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
)

type listLiveSessionsQuery struct {
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type updateLiveSessionRequest struct {
	Status string `json:"status"`
}

func (s *Server) ListLiveSessions(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var query listLiveSessionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.chatSvc.ListLiveSessions(c.Request.Context(), actor, chatdomain.ListLiveSessionsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Sessions, "page_info": resp.PageInfo})
}

func (s *Server) AcceptLiveSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	view, err := s.chatSvc.AcceptSession(c.Request.Context(), actor, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// UpdateLiveSession moves a session to active or ended from the advisor console.
func (s *Server) UpdateLiveSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req updateLiveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var (
		view *chatdomain.SessionView
		err  error
	)
	switch chatdomain.SessionStatus(strings.ToLower(strings.TrimSpace(req.Status))) {
	case chatdomain.SessionStatusActive:
		view, err = s.chatSvc.AcceptSession(c.Request.Context(), actor, sessionID)
	case chatdomain.SessionStatusEnded:
		view, err = s.chatSvc.EndSession(c.Request.Context(), actor, sessionID)
	default:
		err = chatdomain.ErrInvalidStatus
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
