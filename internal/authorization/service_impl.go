package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectWallet       = "wallet"
	ObjectChatSession  = "chat_session"
	ObjectChatMessage  = "chat_message"
	ObjectLiveSessions = "live_sessions"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionWalletView   = "wallet.view"
	ActionWalletTopUp  = "wallet.top_up"
	ActionWalletGrant  = "wallet.grant"
	ActionSessionOpen  = "chat_session.request"
	ActionSessionView  = "chat_session.view"
	ActionSessionEnd   = "chat_session.end"
	ActionMessageView  = "chat_message.view"
	ActionMessagePost  = "chat_message.post"
	ActionLiveView     = "live_sessions.view"
	ActionLiveAccept   = "live_sessions.accept"
	ActionLiveEnd      = "live_sessions.end"
	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer builds the RBAC enforcer persisted through the gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewInMemoryEnforcer builds an enforcer holding only the built-in grants.
func NewInMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	params := []interface{}{m}
	if adapter != nil {
		params = append(params, adapter)
	}
	enforcer, err := casbin.NewSyncedEnforcer(params...)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := grantBuiltins(enforcer); err != nil {
		return nil, err
	}
	return enforcer, enforcer.BuildRoleLinks()
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks the role's capability only. Whether the actor owns the
// wallet or session is up to the calling service.
func (s *ServiceImpl) Authorize(ctx context.Context, actor auth.Actor, object string, action string) error {
	if !actor.Valid() {
		return ErrInvalidActor
	}
	want := capability{object: strings.TrimSpace(object), action: strings.TrimSpace(action)}
	switch {
	case want.object == "":
		return ErrInvalidObject
	case want.action == "":
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subjectFor(actor.Role), want.object, want.action)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	s.log.Debug("authorization denied",
		zap.String("role", string(actor.Role)),
		zap.String("object", want.object),
		zap.String("action", want.action),
	)
	if s.auditSvc != nil {
		actorID, targetID := actor.ID, "capability"
		_ = s.auditSvc.AuditLog(ctx, string(actor.Role), &actorID, auditdomain.ActionAuthorizationDenied, "authorization", &targetID,
			map[string]any{"object": want.object, "action": want.action})
	}
	return ErrForbidden
}

func subjectFor(role auth.Role) string {
	return "role:" + string(role)
}

type capability struct {
	object string
	action string
}

// grants lists what each role may do. Admins also get every advisor grant.
var grants = map[auth.Role][]capability{
	auth.RoleCustomer: {
		{ObjectWallet, ActionWalletView},
		{ObjectWallet, ActionWalletTopUp},
		{ObjectChatSession, ActionSessionOpen},
		{ObjectChatSession, ActionSessionView},
		{ObjectChatSession, ActionSessionEnd},
		{ObjectChatMessage, ActionMessageView},
		{ObjectChatMessage, ActionMessagePost},
	},
	auth.RoleAdvisor: {
		{ObjectChatSession, ActionSessionView},
		{ObjectChatSession, ActionSessionEnd},
		{ObjectChatMessage, ActionMessageView},
		{ObjectChatMessage, ActionMessagePost},
		{ObjectLiveSessions, ActionLiveView},
		{ObjectLiveSessions, ActionLiveAccept},
		{ObjectLiveSessions, ActionLiveEnd},
	},
	auth.RoleAdmin: {
		{ObjectWallet, ActionWalletView},
		{ObjectWallet, ActionWalletGrant},
		{ObjectAuditLog, ActionAuditLogView},
	},
	auth.RoleSystem: {
		{ObjectLiveSessions, ActionLiveEnd},
	},
}

var inherits = map[auth.Role]auth.Role{
	auth.RoleAdmin: auth.RoleAdvisor,
}

// grantBuiltins adds the built-in grants, skipping rules a persisted store already holds.
func grantBuiltins(enforcer *casbin.SyncedEnforcer) error {
	var rules [][]string
	for role, caps := range grants {
		for _, c := range caps {
			rules = append(rules, []string{subjectFor(role), c.object, c.action})
		}
	}
	if _, err := enforcer.AddPoliciesEx(rules); err != nil {
		return err
	}
	for role, parent := range inherits {
		if _, err := enforcer.AddGroupingPolicy(subjectFor(role), subjectFor(parent)); err != nil {
			return err
		}
	}
	return nil
}
