package authsession

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/internal/stores"
)

// ChangePassword replaces the password of accountID after verifying the
// current one, then revokes every refresh session of the account. Access
// tokens already issued stay valid until they expire.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.AccountByID(ctx, accountID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return ErrResourceNotFound
	case err != nil:
		return e.storeFailure(ctx, "change_password.account_by_id", err)
	}

	ok, err := e.hasher.Verify(current, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, accountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(current), []byte(next)) == 1 {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, accountID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	revoked, err := e.setPassword(ctx, accountID, next, "change_password")
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}

// setPassword checks the policy, stores the new hash and revokes all
// refresh sessions. It returns the number of sessions revoked.
func (e *Engine) setPassword(ctx context.Context, accountID, next, op string) (int, error) {
	if err := e.checkPolicy(next); err != nil {
		return 0, err
	}
	hash, err := e.hasher.Hash(next)
	if err != nil {
		return 0, e.hashFailure(ctx, err)
	}

	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, ErrResourceNotFound
		}
		return 0, e.storeFailure(ctx, op+".update_hash", err)
	}

	revoked, err := e.refresh.RevokeAll(ctx, accountID)
	if err != nil {
		// The hash is already replaced; surface the failure so the caller
		// retries rather than assume old sessions are gone.
		return 0, e.storeFailure(ctx, op+".revoke_all", err)
	}
	e.metrics.Add(MetricSessionRevoked, uint64(revoked))
	return revoked, nil
}

// RequestPasswordReset issues a reset token for email and hands it to the
// ResetNotifier. It returns nil whether or not the email has an account.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	e.metricInc(MetricPasswordResetRequest)
	if email == "" {
		return nil
	}

	account, err := e.accounts.AccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{"email_fp": internal.Fingerprint(email), "known": "false"}
		})
		return nil
	case err != nil:
		return e.storeFailure(ctx, "forgot_password.account_by_email", err)
	}
	if account.Disabled {
		return nil
	}

	token, rec, err := e.resets.Issue(ctx, email, clientIPFromContext(ctx))
	if err != nil {
		return e.storeFailure(ctx, "forgot_password.issue", err)
	}

	if err := e.notifier.NotifyPasswordReset(ctx, email, token, rec.ExpiresAt); err != nil {
		// Delivery is out of band; the caller still sees success.
		e.logger.WarnContext(ctx, "authsession: reset notification failed", "account_id", account.ID, "error", err)
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email_fp": internal.Fingerprint(email), "known": "true"}
	})
	return nil
}

// ResetPassword redeems a reset token, sets newPassword and revokes every
// refresh session of the account. A password rejected by the policy does
// not spend the token.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if err := e.checkPolicy(newPassword); err != nil {
		return err
	}

	rec, err := e.resets.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, stores.ErrResetRedisUnavailable) {
			return e.storeFailure(ctx, "reset_password.consume", err)
		}
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetRejected, false, "", "", ErrResetTokenInvalid, nil)
		return ErrResetTokenInvalid
	}

	account, err := e.accounts.AccountByEmail(ctx, rec.Email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrResetTokenInvalid
	case err != nil:
		return e.storeFailure(ctx, "reset_password.account_by_email", err)
	}

	revoked, err := e.setPassword(ctx, account.ID, newPassword, "reset_password")
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}
