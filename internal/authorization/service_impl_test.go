package authorization

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *mockAuditSvc) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newTestService(t *testing.T, auditSvc auditdomain.Service) Service {
	t.Helper()
	enforcer, err := newEnforcer(nil)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: auditSvc})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	customer := auth.Actor{ID: "ada@example.com", Role: auth.RoleCustomer}
	advisor := auth.Actor{ID: "madame", Role: auth.RoleAdvisor}
	admin := auth.Actor{ID: "owner", Role: auth.RoleAdmin}

	cases := []struct {
		name   string
		actor  auth.Actor
		object string
		action string
		want   error
	}{
		{"customer requests session", customer, ObjectChatSession, ActionSessionOpen, nil},
		{"customer cannot accept", customer, ObjectLiveSessions, ActionLiveAccept, ErrForbidden},
		{"customer cannot grant", customer, ObjectWallet, ActionWalletGrant, ErrForbidden},
		{"advisor accepts", advisor, ObjectLiveSessions, ActionLiveAccept, nil},
		{"advisor cannot grant", advisor, ObjectWallet, ActionWalletGrant, ErrForbidden},
		{"admin inherits advisor", admin, ObjectLiveSessions, ActionLiveAccept, nil},
		{"admin grants", admin, ObjectWallet, ActionWalletGrant, nil},
		{"admin views audit log", admin, ObjectAuditLog, ActionAuditLogView, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, auth.Actor{Role: auth.RoleAdmin}, ObjectWallet, ActionWalletView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, auth.Actor{ID: "x", Role: "root"}, ObjectWallet, ActionWalletView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, auth.Actor{ID: "x", Role: auth.RoleAdmin}, " ", ActionWalletView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, auth.Actor{ID: "x", Role: auth.RoleAdmin}, ObjectWallet, ""), ErrInvalidAction)
}

func TestAuthorizeAuditsDenials(t *testing.T) {
	auditSvc := &mockAuditSvc{}
	auditSvc.On("AuditLog", mock.Anything, "customer", mock.Anything, auditdomain.ActionAuthorizationDenied, "authorization", mock.Anything, map[string]any{
		"object": ObjectWallet,
		"action": ActionWalletGrant,
	}).Return(nil).Once()

	svc := newTestService(t, auditSvc)
	err := svc.Authorize(context.Background(), auth.Actor{ID: "ada@example.com", Role: auth.RoleCustomer}, ObjectWallet, ActionWalletGrant)

	assert.ErrorIs(t, err, ErrForbidden)
	auditSvc.AssertExpectations(t)
}
