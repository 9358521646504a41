package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/chat/repository"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/events"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/mystictxt/internal/wallet/repository"
	walletservice "github.com/smallbiznis/mystictxt/internal/wallet/service"
	"github.com/smallbiznis/mystictxt/pkg/db/dbtest"
	"github.com/smallbiznis/mystictxt/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	customer = auth.Actor{ID: "ada@example.com", Role: auth.RoleCustomer}
	stranger = auth.Actor{ID: "bo@example.com", Role: auth.RoleCustomer}
	advisor  = auth.Actor{ID: "madame", Role: auth.RoleAdvisor}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	wallets   walletdomain.Service
	clock     *clock.FakeClock
	hub       *liveevents.Hub
	publisher *recordingPublisher
}

func newFixture(t *testing.T, customerCanEnd bool) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC))
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	wallets := walletservice.NewService(walletservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   clk,
		Repo:    walletrepo.Provide(),
		Pricing: pricing,
	})

	enforcer, err := authorization.NewInMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	var cfg config.Config
	cfg.Chat.CustomerCanEnd = customerCanEnd

	hub := liveevents.NewHub()
	publisher := &recordingPublisher{}
	svc := NewService(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Config:    cfg,
		Clock:     clk,
		Sessions:  repository.ProvideSessions(),
		Messages:  repository.ProvideMessages(),
		Wallets:   wallets,
		Authz:     authz,
		Pricing:   pricing,
		Hub:       hub,
		Publisher: publisher,
	})
	return &fixture{db: conn, svc: svc, wallets: wallets, clock: clk, hub: hub, publisher: publisher}
}

func paginationOf(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}

func (f *fixture) fund(t *testing.T, customerID string, cents int64) *walletdomain.Wallet {
	t.Helper()
	ctx := context.Background()
	wallet, err := f.wallets.GetOrCreateWallet(ctx, customerID)
	require.NoError(t, err)
	if cents == 0 {
		return wallet
	}
	wallet, err = f.wallets.AdjustBalance(ctx, wallet.ID, walletdomain.Entry{
		AmountCents: cents,
		Type:        walletdomain.TransactionTypeCredit,
		Description: "test funding",
	})
	require.NoError(t, err)
	return wallet
}

func (f *fixture) balance(t *testing.T, walletID int64) int64 {
	t.Helper()
	wallet, err := f.wallets.GetWallet(context.Background(), walletID)
	require.NoError(t, err)
	return wallet.BalanceCents
}

func TestRequestSessionWithoutCredits(t *testing.T) {
	f := newFixture(t, true)
	wallet := f.fund(t, customer.ID, 0)

	_, err := f.svc.RequestSession(context.Background(), customer, domain.RequestSessionRequest{DurationMinutes: 5})

	var insufficient *walletdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 1495, insufficient.Required)
	assert.EqualValues(t, 0, insufficient.Available)
	assert.EqualValues(t, 0, f.balance(t, wallet.ID))

	var sessions int64
	require.NoError(t, f.db.Model(&domain.ChatSession{}).Count(&sessions).Error)
	assert.Zero(t, sessions)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	wallet := f.fund(t, customer.ID, 2000)

	// Request: pending, debited once.
	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusPending, view.Status)
	assert.EqualValues(t, 1495, view.CreditsUsedCents)
	assert.EqualValues(t, 299, view.RatePerMinuteCents)
	assert.Nil(t, view.StartedAt)
	assert.EqualValues(t, 505, f.balance(t, wallet.ID))

	txns, err := f.wallets.ListTransactions(ctx, wallet.ID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.EqualValues(t, -1495, txns[0].AmountCents)
	assert.Equal(t, walletdomain.TransactionTypeDebit, txns[0].Type)

	// Pending sessions do not accept messages.
	_, err = f.svc.PostMessage(ctx, customer, domain.PostMessageRequest{SessionID: view.ID, Content: "hello?"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)

	// Accept: active, greeting after the announcement.
	accepted, err := f.svc.AcceptSession(ctx, advisor, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, accepted.Status)
	require.NotNil(t, accepted.StartedAt)
	assert.EqualValues(t, 300, accepted.RemainingSeconds)

	log, err := f.svc.ListMessages(ctx, customer, domain.ListMessagesRequest{SessionID: view.ID})
	require.NoError(t, err)
	require.Len(t, log.Messages, 2)
	assert.Equal(t, domain.SenderRoleSystem, log.Messages[0].SenderRole)
	assert.Equal(t, domain.SenderRoleAdvisor, log.Messages[1].SenderRole)
	assert.Greater(t, log.Messages[1].ID, log.Messages[0].ID)

	msg, err := f.svc.PostMessage(ctx, customer, domain.PostMessageRequest{SessionID: view.ID, Content: "  Will I travel?  "})
	require.NoError(t, err)
	assert.Equal(t, "Will I travel?", msg.Content)
	assert.Equal(t, domain.SenderRoleCustomer, msg.SenderRole)

	// Expiry materializes on read without any end call.
	f.clock.Advance(301 * time.Second)
	expired, err := f.svc.GetSessionView(ctx, customer, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusEnded, expired.Status)
	assert.Equal(t, domain.EndReasonExpired, expired.EndReason)
	require.NotNil(t, expired.EndedAt)
	assert.True(t, f.clock.Now().Equal(*expired.EndedAt))
	assert.Zero(t, expired.RemainingSeconds)

	var stored domain.ChatSession
	require.NoError(t, f.db.First(&stored, view.ID).Error)
	assert.Equal(t, domain.SessionStatusEnded, stored.Status)

	// Posting after expiry.
	_, err = f.svc.PostMessage(ctx, customer, domain.PostMessageRequest{SessionID: view.ID, Content: "still there?"})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	assert.Equal(t, []string{
		events.TypeSessionRequested,
		events.TypeSessionAccepted,
		events.TypeSessionEnded,
	}, f.publisher.types())
}

func TestExpiryBoundary(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.fund(t, customer.ID, 5000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
	require.NoError(t, err)

	f.clock.Advance(299 * time.Second)
	current, err := f.svc.GetSessionView(ctx, customer, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, current.Status)
	assert.EqualValues(t, 1, current.RemainingSeconds)
	assert.True(t, current.GraceWarning)

	f.clock.Advance(time.Second)
	current, err = f.svc.GetSessionView(ctx, customer, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusEnded, current.Status)
}

func TestFundedCustomerCanHoldSeveralOpenSessions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	wallet := f.fund(t, customer.ID, 5000)

	first, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	_, err = f.svc.AcceptSession(ctx, advisor, first.ID)
	require.NoError(t, err)

	second, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.SessionStatusPending, second.Status)
	assert.EqualValues(t, 5000-2*1495, f.balance(t, wallet.ID))

	current, err := f.svc.GetSessionView(ctx, customer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, current.Status)

	// 2010 left, so a third 5 minute session still fits but a 10 minute one does not.
	_, err = f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 10})
	var insufficient *walletdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 2990, insufficient.Required)
	assert.EqualValues(t, 2010, insufficient.Available)

	_, err = f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 5000-3*1495, f.balance(t, wallet.ID))
}

func TestConcurrentRequestsDebitOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	wallet := f.fund(t, customer.ID, 1495)

	const workers = 8
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient []*walletdomain.InsufficientCreditsError
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
			mu.Lock()
			defer mu.Unlock()
			var shortfall *walletdomain.InsufficientCreditsError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &shortfall):
				insufficient = append(insufficient, shortfall)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, insufficient, workers-1)
	for _, shortfall := range insufficient {
		assert.Equal(t, walletdomain.InsufficientCreditsError{Required: 1495, Available: 0}, *shortfall)
	}
	assert.Zero(t, f.balance(t, wallet.ID))

	account, err := f.svc.GetAccount(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, account.Sessions, 1)

	mismatches, err := f.wallets.FindInconsistentWallets(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestRequestSessionValidation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 4})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	_, err = f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 61})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = f.svc.RequestSession(ctx, advisor, domain.RequestSessionRequest{DurationMinutes: 5})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestOwnershipHidesSessions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.fund(t, customer.ID, 2000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)

	_, err = f.svc.GetSessionView(ctx, stranger, view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.svc.ListMessages(ctx, stranger, domain.ListMessagesRequest{SessionID: view.ID})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.svc.PostMessage(ctx, stranger, domain.PostMessageRequest{SessionID: view.ID, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	staffView, err := f.svc.GetSessionView(ctx, advisor, view.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, staffView.CustomerID)

	_, err = f.svc.GetSessionView(ctx, customer, 9999)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.svc.AcceptSession(ctx, customer, view.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestMessageCursoring(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.fund(t, customer.ID, 2000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 10})
	require.NoError(t, err)
	_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.svc.PostMessage(ctx, customer, domain.PostMessageRequest{SessionID: view.ID, Content: content})
		require.NoError(t, err)
	}
	reply, err := f.svc.PostMessage(ctx, advisor, domain.PostMessageRequest{SessionID: view.ID, Content: "I see a journey."})
	require.NoError(t, err)
	assert.Equal(t, domain.SenderRoleAdvisor, reply.SenderRole)

	seen := map[int64]bool{}
	var sinceID int64
	for {
		page, err := f.svc.ListMessages(ctx, customer, domain.ListMessagesRequest{SessionID: view.ID, SinceID: sinceID, Limit: 2})
		require.NoError(t, err)
		if len(page.Messages) == 0 {
			assert.Equal(t, sinceID, page.LastID)
			break
		}
		for _, message := range page.Messages {
			assert.False(t, seen[message.ID], "duplicate message %d", message.ID)
			assert.Greater(t, message.ID, sinceID)
			seen[message.ID] = true
		}
		sinceID = page.LastID
	}
	assert.Len(t, seen, 6)

	_, err = f.svc.ListMessages(ctx, customer, domain.ListMessagesRequest{SessionID: view.ID, SinceID: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)

	_, err = f.svc.PostMessage(ctx, customer, domain.PostMessageRequest{SessionID: view.ID, Content: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidContent)
}

func TestEndSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	wallet := f.fund(t, customer.ID, 2000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)
	_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	ended, err := f.svc.EndSession(ctx, customer, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusEnded, ended.Status)
	assert.Equal(t, domain.EndReasonByCustomer, ended.EndReason)
	require.NotNil(t, ended.EndedAt)
	endedAt := *ended.EndedAt

	// No refund for unused time.
	assert.EqualValues(t, 505, f.balance(t, wallet.ID))

	f.clock.Advance(time.Minute)
	_, err = f.svc.EndSession(ctx, advisor, view.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	again, err := f.svc.GetSessionView(ctx, customer, view.ID)
	require.NoError(t, err)
	require.NotNil(t, again.EndedAt)
	assert.True(t, endedAt.Equal(*again.EndedAt))
	assert.Equal(t, domain.EndReasonByCustomer, again.EndReason)

	log, err := f.svc.ListMessages(ctx, advisor, domain.ListMessagesRequest{SessionID: view.ID})
	require.NoError(t, err)
	last := log.Messages[len(log.Messages)-1]
	assert.Equal(t, domain.SenderRoleSystem, last.SenderRole)
	assert.Equal(t, messageSessionEnded, last.Content)
}

func TestAdvisorEndsPendingSession(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.fund(t, customer.ID, 2000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)

	_, err = f.svc.EndSession(ctx, customer, view.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	ended, err := f.svc.EndSession(ctx, advisor, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndReasonByAdvisor, ended.EndReason)
	assert.Nil(t, ended.StartedAt)

	_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestExpireOverdueSessions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var ids []int64
	for _, actor := range []auth.Actor{customer, stranger} {
		f.fund(t, actor.ID, 2000)
		view, err := f.svc.RequestSession(ctx, actor, domain.RequestSessionRequest{DurationMinutes: 5})
		require.NoError(t, err)
		_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
		require.NoError(t, err)
		ids = append(ids, view.ID)
	}

	count, err := f.svc.ExpireOverdueSessions(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.clock.Advance(6 * time.Minute)
	count, err = f.svc.ExpireOverdueSessions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range ids {
		var stored domain.ChatSession
		require.NoError(t, f.db.First(&stored, id).Error)
		assert.Equal(t, domain.SessionStatusEnded, stored.Status)
		assert.Equal(t, domain.EndReasonExpired, stored.EndReason)
		require.NotNil(t, stored.EndedAt)
		assert.True(t, f.clock.Now().Equal(*stored.EndedAt))
	}

	count, err = f.svc.ExpireOverdueSessions(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	log, err := f.svc.ListMessages(ctx, customer, domain.ListMessagesRequest{SessionID: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, messageTimeUp, log.Messages[len(log.Messages)-1].Content)
}

func TestListLiveSessions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for _, actor := range []auth.Actor{customer, stranger, {ID: "cy@example.com", Role: auth.RoleCustomer}} {
		f.fund(t, actor.ID, 2000)
		_, err := f.svc.RequestSession(ctx, actor, domain.RequestSessionRequest{DurationMinutes: 5})
		require.NoError(t, err)
	}

	_, err := f.svc.ListLiveSessions(ctx, customer, domain.ListLiveSessionsRequest{})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	first, err := f.svc.ListLiveSessions(ctx, advisor, domain.ListLiveSessionsRequest{Pagination: paginationOf("", 2)})
	require.NoError(t, err)
	require.Len(t, first.Sessions, 2)
	assert.True(t, first.HasMore)
	assert.Greater(t, first.Sessions[0].ID, first.Sessions[1].ID)

	second, err := f.svc.ListLiveSessions(ctx, advisor, domain.ListLiveSessionsRequest{Pagination: paginationOf(first.NextPageToken, 2)})
	require.NoError(t, err)
	require.Len(t, second.Sessions, 1)
	assert.False(t, second.HasMore)

	_, err = f.svc.ListLiveSessions(ctx, advisor, domain.ListLiveSessionsRequest{Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	ended, err := f.svc.ListLiveSessions(ctx, advisor, domain.ListLiveSessionsRequest{Status: "ended"})
	require.NoError(t, err)
	assert.Empty(t, ended.Sessions)
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.fund(t, customer.ID, 2000)

	_, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)

	account, err := f.svc.GetAccount(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, account.CustomerID)
	assert.Equal(t, "$5.05", account.BalanceDisplay)
	assert.Len(t, account.Transactions, 2)
	require.Len(t, account.Sessions, 1)
	assert.Equal(t, "$14.95", account.Sessions[0].CreditsUsedDisplay)
}

func TestLiveEventsFollowCommits(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.fund(t, customer.ID, 2000)

	view, err := f.svc.RequestSession(ctx, customer, domain.RequestSessionRequest{DurationMinutes: 5})
	require.NoError(t, err)

	sub, backlog, err := f.hub.Subscribe(view.ID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	_, err = f.svc.AcceptSession(ctx, advisor, view.ID)
	require.NoError(t, err)

	received := make([]string, 0, 2)
	for len(received) < 2 {
		select {
		case event := <-sub.Events():
			received = append(received, event.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %v", received)
		}
	}
	assert.Equal(t, []string{liveevents.EventSessionUpdated, liveevents.EventMessagePosted}, received)
}
