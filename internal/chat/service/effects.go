package service

import (
	"context"
	"strconv"

	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/events"
	"go.uber.org/zap"
)

type sessionChange struct {
	session domain.ChatSession
	from    domain.SessionStatus
}

// changeSet collects what a transaction changed so notifications go out only after commit.
type changeSet struct {
	sessions []sessionChange
	messages []domain.ChatMessage
}

func (c *changeSet) session(session *domain.ChatSession, from domain.SessionStatus) {
	c.sessions = append(c.sessions, sessionChange{session: *session, from: from})
}

func (c *changeSet) message(message *domain.ChatMessage) {
	c.messages = append(c.messages, *message)
}

func (s *Service) flush(ctx context.Context, actor auth.Actor, changes changeSet) {
	now := s.clock.Now().UTC()

	for i := range changes.sessions {
		change := changes.sessions[i]
		session := change.session

		s.metrics.RecordSessionTransition(ctx, string(change.from), string(session.Status), string(session.EndReason))

		if s.hub != nil {
			view := domain.NewSessionView(&session, now)
			s.hub.Publish(session.ID, liveevents.Event{Type: liveevents.EventSessionUpdated, Session: &view})
		}

		eventType, action := lifecycleOf(change)
		s.publish(ctx, eventType, session)

		if action != "" {
			targetID := strconv.FormatInt(session.ID, 10)
			s.audit(ctx, actor, action, &targetID, map[string]any{
				"customer_id":        session.CustomerID,
				"from":               string(change.from),
				"to":                 string(session.Status),
				"end_reason":         string(session.EndReason),
				"credits_used_cents": session.CreditsUsedCents,
			})
		}
	}

	for i := range changes.messages {
		message := changes.messages[i]
		s.metrics.RecordMessage(ctx, string(message.SenderRole))
		if s.hub != nil {
			s.hub.Publish(message.SessionID, liveevents.Event{Type: liveevents.EventMessagePosted, Message: &message})
		}
	}
}

// lifecycleOf maps a transition to its domain event type and audit action.
// Expiry is audited once per sweep batch, not per session.
func lifecycleOf(change sessionChange) (string, string) {
	switch change.session.Status {
	case domain.SessionStatusPending:
		return events.TypeSessionRequested, auditdomain.ActionSessionRequested
	case domain.SessionStatusActive:
		return events.TypeSessionAccepted, auditdomain.ActionSessionAccepted
	default:
		if change.session.EndReason == domain.EndReasonExpired {
			return events.TypeSessionEnded, ""
		}
		return events.TypeSessionEnded, auditdomain.ActionSessionEnded
	}
}

func (s *Service) publish(ctx context.Context, eventType string, session domain.ChatSession) {
	if s.publisher == nil {
		return
	}
	event := events.SessionEvent{
		Type:             eventType,
		SessionID:        session.ID,
		CustomerID:       session.CustomerID,
		Status:           string(session.Status),
		EndReason:        string(session.EndReason),
		DurationMinutes:  session.DurationMinutes,
		CreditsUsedCents: session.CreditsUsedCents,
		OccurredAt:       session.UpdatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish session event",
			zap.Int64("session_id", session.ID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, actor auth.Actor, action string, targetID *string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.ID
	if err := s.auditSvc.AuditLog(ctx, string(actor.Role), &actorID, action, "chat_session", targetID, metadata); err != nil {
		s.log.Warn("chat audit failed", zap.String("action", action), zap.Error(err))
	}
}
