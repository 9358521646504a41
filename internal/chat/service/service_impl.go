package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/events"
	"github.com/smallbiznis/mystictxt/internal/observability/metrics"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	messageSessionEnded = "Session ended"
	messageTimeUp       = "Session time is up"

	defaultLivePageSize  = 20
	maxLivePageSize      = 100
	accountRecentEntries = 20
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Sessions  domain.SessionRepository
	Messages  domain.MessageRepository
	Wallets   walletdomain.Service
	Authz     authorization.Service
	Pricing   *config.PricingHolder
	Hub       *liveevents.Hub     `optional:"true"`
	Publisher events.Publisher    `optional:"true"`
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	sessions       domain.SessionRepository
	messages       *MessageLog
	wallets        walletdomain.Service
	authz          authorization.Service
	pricing        *config.PricingHolder
	hub            *liveevents.Hub
	publisher      events.Publisher
	auditSvc       auditdomain.Service
	metrics        *metrics.Metrics
	customerCanEnd bool
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("chat.service"),
		clock:          clk,
		sessions:       p.Sessions,
		messages:       NewMessageLog(p.Messages, clk),
		wallets:        p.Wallets,
		authz:          p.Authz,
		pricing:        p.Pricing,
		hub:            p.Hub,
		publisher:      p.Publisher,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
		customerCanEnd: p.Config.Chat.CustomerCanEnd,
	}
}

// RequestSession debits the full session price up front and opens a pending session.
func (s *Service) RequestSession(ctx context.Context, actor auth.Actor, req domain.RequestSessionRequest) (*domain.SessionView, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectChatSession, authorization.ActionSessionOpen); err != nil {
		return nil, err
	}
	if err := domain.ValidateDuration(req.DurationMinutes); err != nil {
		return nil, err
	}

	rate := s.pricingConfig().RatePerMinuteCents
	now := s.clock.Now().UTC()

	var (
		session *domain.ChatSession
		changes changeSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = domain.NewSession(actor.ID, req.DurationMinutes, rate, now)
		if err != nil {
			return err
		}

		wallet, err := s.wallets.GetOrCreate(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		if _, _, err := s.wallets.Apply(ctx, tx, wallet.ID, walletdomain.Entry{
			AmountCents: -session.CreditsUsedCents,
			Type:        walletdomain.TransactionTypeDebit,
			Description: fmt.Sprintf("Chat session (%d min)", session.DurationMinutes),
		}); err != nil {
			return err
		}

		if err := s.sessions.Insert(ctx, tx, session); err != nil {
			return err
		}
		changes.session(session, "")

		announcement, err := s.messages.Append(ctx, tx, session.ID, domain.SenderRoleSystem, fmt.Sprintf(
			"Chat requested for %d minutes (%s). Waiting for the psychic to join.",
			session.DurationMinutes,
			walletdomain.FormatCents(session.CreditsUsedCents),
		))
		if err != nil {
			return err
		}
		changes.message(announcement)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSessionRequested(ctx, session.DurationMinutes)
	s.flush(ctx, actor, changes)

	view := domain.NewSessionView(session, now)
	return &view, nil
}

func (s *Service) AcceptSession(ctx context.Context, actor auth.Actor, sessionID int64) (*domain.SessionView, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectLiveSessions, authorization.ActionLiveAccept); err != nil {
		return nil, err
	}
	if sessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}

	now := s.clock.Now().UTC()
	var (
		session *domain.ChatSession
		changes changeSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.loadSession(ctx, tx, actor, sessionID, now, &changes)
		if err != nil {
			return err
		}

		from := session.Status
		if err := session.Accept(now); err != nil {
			return err
		}
		if err := s.updateState(ctx, tx, session, from); err != nil {
			return err
		}
		changes.session(session, from)

		greeting, err := s.messages.Append(ctx, tx, session.ID, domain.SenderRoleAdvisor, s.pricingConfig().Greeting)
		if err != nil {
			return err
		}
		changes.message(greeting)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)
	view := domain.NewSessionView(session, now)
	return &view, nil
}

// EndSession closes a pending or active session. Unused time is not refunded.
func (s *Service) EndSession(ctx context.Context, actor auth.Actor, sessionID int64) (*domain.SessionView, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectChatSession, authorization.ActionSessionEnd); err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleCustomer && !s.customerCanEnd {
		return nil, authorization.ErrForbidden
	}
	if sessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}

	reason := domain.EndReasonByAdvisor
	if actor.Role == auth.RoleCustomer {
		reason = domain.EndReasonByCustomer
	}

	now := s.clock.Now().UTC()
	var (
		session *domain.ChatSession
		changes changeSet
		outcome error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.loadSession(ctx, tx, actor, sessionID, now, &changes)
		if err != nil {
			return err
		}

		from := session.Status
		if err := session.End(now, reason); err != nil {
			// A just-materialized expiry must still commit.
			outcome = err
			return nil
		}
		if err := s.updateState(ctx, tx, session, from); err != nil {
			return err
		}
		changes.session(session, from)

		notice, err := s.messages.Append(ctx, tx, session.ID, domain.SenderRoleSystem, messageSessionEnded)
		if err != nil {
			return err
		}
		changes.message(notice)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)
	if outcome != nil {
		return nil, outcome
	}
	view := domain.NewSessionView(session, now)
	return &view, nil
}

func (s *Service) GetSessionView(ctx context.Context, actor auth.Actor, sessionID int64) (*domain.SessionView, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectChatSession, authorization.ActionSessionView); err != nil {
		return nil, err
	}
	if sessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}

	now := s.clock.Now().UTC()
	var (
		session *domain.ChatSession
		changes changeSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.loadSession(ctx, tx, actor, sessionID, now, &changes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)
	view := domain.NewSessionView(session, now)
	return &view, nil
}

func (s *Service) ListMessages(ctx context.Context, actor auth.Actor, req domain.ListMessagesRequest) (*domain.ListMessagesResponse, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectChatMessage, authorization.ActionMessageView); err != nil {
		return nil, err
	}
	if req.SessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}
	if req.SinceID < 0 {
		return nil, domain.ErrInvalidCursor
	}

	now := s.clock.Now().UTC()
	var (
		session  *domain.ChatSession
		messages []domain.ChatMessage
		changes  changeSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.loadSession(ctx, tx, actor, req.SessionID, now, &changes)
		if err != nil {
			return err
		}
		messages, err = s.messages.ListSince(ctx, tx, session.ID, req.SinceID, req.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)

	lastID := req.SinceID
	if len(messages) > 0 {
		lastID = messages[len(messages)-1].ID
	}
	return &domain.ListMessagesResponse{
		Session:  domain.NewSessionView(session, now),
		Messages: messages,
		LastID:   lastID,
	}, nil
}

func (s *Service) PostMessage(ctx context.Context, actor auth.Actor, req domain.PostMessageRequest) (*domain.ChatMessage, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectChatMessage, authorization.ActionMessagePost); err != nil {
		return nil, err
	}
	if req.SessionID <= 0 {
		return nil, domain.ErrInvalidSessionID
	}
	role, err := senderRoleFor(actor)
	if err != nil {
		return nil, err
	}
	content, err := domain.NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var (
		message *domain.ChatMessage
		changes changeSet
		outcome error
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.loadSession(ctx, tx, actor, req.SessionID, now, &changes)
		if err != nil {
			return err
		}

		switch {
		case session.Status == domain.SessionStatusEnded && session.EndReason == domain.EndReasonExpired:
			outcome = domain.ErrSessionExpired
			return nil
		case session.Status != domain.SessionStatusActive:
			outcome = fmt.Errorf("%w: %w", domain.ErrInvalidTransition, domain.ErrSessionNotActive)
			return nil
		}

		message, err = s.messages.Append(ctx, tx, session.ID, role, content)
		if err != nil {
			return err
		}
		changes.message(message)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)
	if outcome != nil {
		return nil, outcome
	}
	return message, nil
}

func (s *Service) ListLiveSessions(ctx context.Context, actor auth.Actor, req domain.ListLiveSessionsRequest) (domain.ListLiveSessionsResponse, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectLiveSessions, authorization.ActionLiveView); err != nil {
		return domain.ListLiveSessionsResponse{}, err
	}

	statuses, err := parseStatusFilter(req.Status)
	if err != nil {
		return domain.ListLiveSessionsResponse{}, err
	}
	beforeID, err := pagination.DecodeIDCursor(strings.TrimSpace(req.PageToken))
	if err != nil || beforeID < 0 {
		return domain.ListLiveSessionsResponse{}, domain.ErrInvalidPageToken
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultLivePageSize
	}
	if pageSize > maxLivePageSize {
		pageSize = maxLivePageSize
	}

	now := s.clock.Now().UTC()
	var (
		items    []*domain.ChatSession
		pageInfo *pagination.PageInfo
		changes  changeSet
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.sessions.List(ctx, tx, domain.SessionFilter{
			Statuses: statuses,
			BeforeID: beforeID,
			Limit:    pageSize,
		})
		if err != nil {
			return err
		}
		items, pageInfo = pagination.BuildCursorPageInfo(found, pageSize, func(session *domain.ChatSession) string {
			return pagination.EncodeIDCursor(session.ID)
		})
		for _, session := range items {
			if _, err := s.persistExpiry(ctx, tx, session, now, &changes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ListLiveSessionsResponse{}, err
	}

	s.flush(ctx, actor, changes)

	views := make([]domain.SessionView, 0, len(items))
	for _, session := range items {
		if len(statuses) > 0 && !containsStatus(statuses, session.Status) {
			continue
		}
		views = append(views, domain.NewSessionView(session, now))
	}
	return domain.ListLiveSessionsResponse{PageInfo: *pageInfo, Sessions: views}, nil
}

func (s *Service) GetAccount(ctx context.Context, actor auth.Actor) (*domain.Account, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectWallet, authorization.ActionWalletView); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.GetOrCreateWallet(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.wallets.ListTransactions(ctx, wallet.ID, accountRecentEntries)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var (
		sessions []*domain.ChatSession
		changes  changeSet
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sessions, err = s.sessions.List(ctx, tx, domain.SessionFilter{CustomerID: wallet.CustomerID, Limit: accountRecentEntries})
		if err != nil {
			return err
		}
		if len(sessions) > accountRecentEntries {
			sessions = sessions[:accountRecentEntries]
		}
		for _, session := range sessions {
			if _, err := s.persistExpiry(ctx, tx, session, now, &changes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, actor, changes)

	views := make([]domain.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, domain.NewSessionView(session, now))
	}
	return &domain.Account{
		CustomerID:     wallet.CustomerID,
		Wallet:         wallet,
		BalanceDisplay: walletdomain.FormatCents(wallet.BalanceCents),
		Transactions:   transactions,
		Sessions:       views,
	}, nil
}

// ExpireOverdueSessions ends active sessions whose time ran out, stamping ended_at
// with the sweep's observation time.
func (s *Service) ExpireOverdueSessions(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	now := s.clock.Now().UTC()
	var (
		expired []int64
		changes changeSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overdue, err := s.sessions.ListOverdue(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for _, session := range overdue {
			ok, err := s.persistExpiry(ctx, tx, session, now, &changes)
			if err != nil {
				return err
			}
			if ok {
				expired = append(expired, session.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	system := auth.SystemActor()
	s.flush(ctx, system, changes)
	if len(expired) > 0 {
		s.audit(ctx, system, auditdomain.ActionSessionsExpired, nil, map[string]any{
			"count":       len(expired),
			"session_ids": expired,
		})
	}
	return len(expired), nil
}

// loadSession fetches the session visible to actor and persists a lapsed expiry.
// Customers get ErrSessionNotFound for sessions they do not own.
func (s *Service) loadSession(ctx context.Context, tx *gorm.DB, actor auth.Actor, sessionID int64, now time.Time, changes *changeSet) (*domain.ChatSession, error) {
	session, err := s.sessions.FindByID(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if !actor.IsStaff() && !session.OwnedBy(actor.ID) {
		return nil, domain.ErrSessionNotFound
	}
	if _, err := s.persistExpiry(ctx, tx, session, now, changes); err != nil {
		return nil, err
	}
	return session, nil
}

// persistExpiry writes a lapsed expiry back. It reports whether this call ended the
// session; on a lost race the session is reloaded with the stored state.
func (s *Service) persistExpiry(ctx context.Context, tx *gorm.DB, session *domain.ChatSession, now time.Time, changes *changeSet) (bool, error) {
	if !session.MaterializeExpiry(now) {
		return false, nil
	}

	ok, err := s.sessions.UpdateState(ctx, tx, session, domain.SessionStatusActive)
	if err != nil {
		return false, err
	}
	if !ok {
		stored, err := s.sessions.FindByID(ctx, tx, session.ID)
		if err != nil {
			return false, err
		}
		if stored == nil {
			return false, domain.ErrSessionNotFound
		}
		*session = *stored
		return false, nil
	}
	changes.session(session, domain.SessionStatusActive)

	notice, err := s.messages.Append(ctx, tx, session.ID, domain.SenderRoleSystem, messageTimeUp)
	if err != nil {
		return false, err
	}
	changes.message(notice)
	return true, nil
}

func (s *Service) updateState(ctx context.Context, tx *gorm.DB, session *domain.ChatSession, from domain.SessionStatus) error {
	ok, err := s.sessions.UpdateState(ctx, tx, session, from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: session %d changed concurrently", domain.ErrInvalidTransition, session.ID)
	}
	return nil
}

func (s *Service) pricingConfig() config.PricingConfig {
	if s.pricing == nil {
		return config.DefaultPricingConfig()
	}
	return s.pricing.Get()
}

func senderRoleFor(actor auth.Actor) (domain.SenderRole, error) {
	switch {
	case actor.Role == auth.RoleCustomer:
		return domain.SenderRoleCustomer, nil
	case actor.IsStaff():
		return domain.SenderRoleAdvisor, nil
	default:
		return "", domain.ErrInvalidSenderRole
	}
}

func parseStatusFilter(raw string) ([]domain.SessionStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return []domain.SessionStatus{domain.SessionStatusPending, domain.SessionStatusActive}, nil
	case "all":
		return nil, nil
	}
	status, ok := domain.ParseSessionStatus(raw)
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	return []domain.SessionStatus{status}, nil
}

func containsStatus(statuses []domain.SessionStatus, status domain.SessionStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
