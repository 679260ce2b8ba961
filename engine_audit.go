package authsession

import (
	"context"
	"errors"
)

const (
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventAccountLocked         = "account_locked"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventSessionRevoked        = "session_revoked"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeInvalid = "password_change_invalid_old"
	auditEventPasswordChangeReuse   = "password_change_reuse_attempt"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordResetRejected = "password_reset_rejected"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventStoreUnavailable      = "store_unavailable"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrResetTokenInvalid  AuditErrorCode = "reset_token_invalid"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, class RateClass, clientID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"class":  string(class),
			"client": clientID,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrResetTokenInvalid):
		return auditErrResetTokenInvalid
	case errors.Is(err, ErrEmailAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrResourceNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
