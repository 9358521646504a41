package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	chatdomain "github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`

	RequiredCents  *int64 `json:"required_cents,omitempty"`
	AvailableCents *int64 `json:"available_cents,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels maps domain input errors to the field they concern.
var validationSentinels = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{chatdomain.ErrInvalidCustomer, "customer_id"},
	{chatdomain.ErrInvalidDuration, "duration_minutes"},
	{chatdomain.ErrInvalidRate, "rate_per_minute_cents"},
	{chatdomain.ErrInvalidContent, "content"},
	{chatdomain.ErrInvalidSenderRole, "sender_role"},
	{chatdomain.ErrInvalidSessionID, "session_id"},
	{chatdomain.ErrInvalidCursor, "since_id"},
	{chatdomain.ErrInvalidPageToken, "page_token"},
	{chatdomain.ErrInvalidStatus, "status"},
	{walletdomain.ErrInvalidCustomer, "customer_id"},
	{walletdomain.ErrInvalidWallet, "wallet_id"},
	{walletdomain.ErrInvalidAmount, "amount_cents"},
	{walletdomain.ErrInvalidPackage, "amount_cents"},
	{walletdomain.ErrInvalidTransactionType, "type"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidTimeRange, "start_at"},
	{auditdomain.ErrInvalidAction, "action"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests && c.Writer.Header().Get("Retry-After") == "" {
			c.Header("Retry-After", "1")
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// errorRule maps any of its sentinels to one response.
type errorRule struct {
	status  int
	kind    string
	message string
	errs    []error
}

// Checked in order after validation and insufficient-credit errors.
var errorRules = []errorRule{
	{http.StatusPaymentRequired, "insufficient_credits", "insufficient credits",
		[]error{walletdomain.ErrInsufficientCredits}},
	{http.StatusUnauthorized, "unauthorized", "unauthorized",
		[]error{ErrUnauthorized, auth.ErrMissingToken, auth.ErrInvalidToken}},
	{http.StatusForbidden, "forbidden", "forbidden",
		[]error{ErrForbidden, authorization.ErrForbidden}},
	{http.StatusGone, "session_expired", "session time is up",
		[]error{chatdomain.ErrSessionExpired}},
	{http.StatusConflict, "invalid_transition", "",
		[]error{chatdomain.ErrInvalidTransition, chatdomain.ErrSessionNotActive}},
	{http.StatusNotFound, "not_found", "not found",
		[]error{ErrNotFound, chatdomain.ErrSessionNotFound, walletdomain.ErrWalletNotFound, gorm.ErrRecordNotFound}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests",
		[]error{ratelimit.ErrRateLimited}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable",
		[]error{ErrServiceUnavailable}},
}

func (r errorRule) matches(err error) bool {
	for _, target := range r.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "validation error", Errors: vErr.Errors}
	}
	if field, code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "validation error",
			Errors:  []ValidationError{{Field: field, Code: code, Message: validationErrorMessage(code)}},
		}
	}

	var insufficient *walletdomain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		required, available := insufficient.Required, insufficient.Available
		return http.StatusPaymentRequired, errorPayload{
			Type:           "insufficient_credits",
			Message:        "insufficient credits",
			RequiredCents:  &required,
			AvailableCents: &available,
		}
	}

	for _, rule := range errorRules {
		if err == nil || !rule.matches(err) {
			continue
		}
		message := rule.message
		if rule.status == http.StatusConflict {
			message = conflictMessage(err)
		}
		return rule.status, errorPayload{Type: rule.kind, Message: message}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

// classifyErrorForLog feeds the access log with the mapped error type and code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "internal", code
	}
	return "expected", code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, string, bool) {
	for _, candidate := range validationSentinels {
		if errors.Is(err, candidate.err) {
			return candidate.field, candidate.err.Error(), true
		}
	}
	return "", "", false
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, chatdomain.ErrSessionNotActive):
		return "session is not active"
	default:
		return "invalid session transition"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_duration_minutes":
		return "duration must be between 5 and 60 minutes"
	case "invalid_content":
		return "message must be between 1 and 2000 characters"
	case "invalid_credit_package":
		return "amount must match a credit package"
	default:
		if strings.HasPrefix(code, "invalid_") {
			return "invalid " + strings.ReplaceAll(strings.TrimPrefix(code, "invalid_"), "_", " ")
		}
		return "invalid value"
	}
}
