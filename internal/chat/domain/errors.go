package domain

import "errors"

var (
	ErrInvalidCustomer   = errors.New("invalid_customer_id")
	ErrInvalidDuration   = errors.New("invalid_duration_minutes")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrInvalidContent    = errors.New("invalid_content")
	ErrInvalidSenderRole = errors.New("invalid_sender_role")
	ErrInvalidSessionID  = errors.New("invalid_session_id")
	ErrInvalidCursor     = errors.New("invalid_since_id")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidStatus     = errors.New("invalid_status")

	ErrSessionNotFound   = errors.New("session_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrSessionNotActive  = errors.New("session_not_active")
	ErrSessionExpired    = errors.New("session_expired")
)
