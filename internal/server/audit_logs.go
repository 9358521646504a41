package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
)

// auditLogsQuery mirrors the admin audit search form. Action accepts a
// namespace wildcard such as "wallet.*".
type auditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=250"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type" binding:"omitempty,oneof=customer advisor admin system"`
	ActorID    string `form:"actor_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (q auditLogsQuery) request() (auditdomain.ListAuditLogRequest, error) {
	startAt, err := lowerBound.parse(q.StartAt)
	if err != nil {
		return auditdomain.ListAuditLogRequest{}, newValidationError("start_at", "invalid_start_at", "invalid start_at")
	}
	endAt, err := upperBound.parse(q.EndAt)
	if err != nil {
		return auditdomain.ListAuditLogRequest{}, newValidationError("end_at", "invalid_end_at", "invalid end_at")
	}
	return auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: strings.TrimSpace(q.PageToken), PageSize: q.PageSize},
		Action:     strings.TrimSpace(q.Action),
		TargetType: strings.TrimSpace(q.TargetType),
		TargetID:   strings.TrimSpace(q.TargetID),
		ActorType:  q.ActorType,
		ActorID:    strings.TrimSpace(q.ActorID),
		StartAt:    startAt,
		EndAt:      endAt,
	}, nil
}

// ListAuditLogs serves GET /admin/api/audit-logs.
func (s *Server) ListAuditLogs(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	var query auditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := query.request()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
