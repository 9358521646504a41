package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mystictxt/internal/config"
)

const (
	keyChatMessage        = "chat:message:%s"
	keyChatSessionRequest = "chat:session_request:%s"
)

var ErrRateLimited = errors.New("rate_limited")

// ChatLimiter throttles message posts and session requests per caller.
// A disabled limiter allows everything.
type ChatLimiter struct {
	enabled bool
	store   *bucketStore

	message Bucket
	request Bucket
}

func NewChatLimiter(cfg config.Config, client redis.UniversalClient) (*ChatLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return &ChatLimiter{}, nil
	}
	message := Bucket{Rate: limitCfg.MessageRate, Burst: limitCfg.MessageBurst}
	if !message.valid() {
		return nil, errors.New("chat message rate limit must be positive")
	}
	request := Bucket{Rate: limitCfg.SessionRequestRate, Burst: limitCfg.SessionRequestBurst}
	if !request.valid() {
		return nil, errors.New("chat session request rate limit must be positive")
	}

	return &ChatLimiter{
		enabled: true,
		store:   newBucketStore(client),
		message: message,
		request: request,
	}, nil
}

func (l *ChatLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ChatLimiter) AllowMessage(ctx context.Context, actorID string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.store.take(ctx, fmt.Sprintf(keyChatMessage, strings.TrimSpace(actorID)), l.message)
}

func (l *ChatLimiter) AllowSessionRequest(ctx context.Context, customerID string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.store.take(ctx, fmt.Sprintf(keyChatSessionRequest, strings.TrimSpace(customerID)), l.request)
}
