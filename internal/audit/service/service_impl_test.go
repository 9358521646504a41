package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/audit/repository"
	"github.com/smallbiznis/mystictxt/internal/clock"
	obscontext "github.com/smallbiznis/mystictxt/internal/observability/context"
	"github.com/smallbiznis/mystictxt/pkg/db/dbtest"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestAuditLogMasksMetadataAndCapturesRequest(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithIPAddress(ctx, "10.0.0.7")
	ctx = obscontext.WithUserAgent(ctx, "curl/8.0")
	ctx = obscontext.WithActor(ctx, "admin", "root@example.com")

	targetID := "42"
	err := svc.AuditLog(ctx, "", nil, auditdomain.ActionWalletCreditGranted, "wallet", &targetID, map[string]any{
		"amount_cents": 500,
		"token":        "abcdef123456",
	})
	require.NoError(t, err)

	res, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)

	entry := res.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "root@example.com", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.7", *entry.IPAddress)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "****3456", entry.Metadata["token"])
	assert.False(t, res.PageInfo.HasMore)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	for _, action := range []string{"  ", "wallet.", "billing.invoice_paid", "chat_session.ended early"} {
		err := svc.AuditLog(context.Background(), "system", nil, action, "wallet", nil, nil)
		assert.ErrorIs(t, err, auditdomain.ErrInvalidAction, action)
	}
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AuditLog(context.Background(), "", nil, auditdomain.ActionSessionsExpired, "chat_session", nil, nil))

	res, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{ActorType: "system"})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	assert.Nil(t, res.AuditLogs[0].ActorID)
}

func TestListFiltersByActionNamespace(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	sessionID := "9"
	for _, action := range []string{
		auditdomain.ActionWalletCreditsAdded,
		auditdomain.ActionSessionRequested,
		auditdomain.ActionWalletCreditGranted,
	} {
		require.NoError(t, svc.AuditLog(ctx, "customer", nil, action, "wallet", &sessionID, nil))
		clk.Advance(time.Second)
	}

	res, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "wallet.*"})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 2)
	assert.Equal(t, auditdomain.ActionWalletCreditGranted, res.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionWalletCreditsAdded, res.AuditLogs[1].Action)

	res, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionSessionRequested})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, auditdomain.ActionSessionEnded, "chat_session", nil, map[string]any{"n": i}))
		clk.Advance(time.Second)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.True(t, second.AuditLogs[0].CreatedAt.Before(first.AuditLogs[1].CreatedAt))
}

func TestListValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
