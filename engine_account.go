package authsession

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/password"
)

// Register creates an account with the default role. The email is trimmed
// and lower-cased; the password must satisfy the configured policy.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (Account, error) {
	if e == nil || e.accounts == nil {
		return Account{}, ErrEngineNotReady
	}

	email := normalizeEmail(in.Email)
	if !plausibleEmail(email) {
		return Account{}, fmt.Errorf("%w: email must be a valid address", ErrInvalidInput)
	}
	if err := e.checkPolicy(in.Password); err != nil {
		return Account{}, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return Account{}, e.hashFailure(ctx, err)
	}

	now := e.now().UTC()
	account := Account{
		ID:           internal.NewAccountID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Roles:        []string{DefaultRole},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrEmailAlreadyExists, func() map[string]string {
				return map[string]string{"email_fp": internal.Fingerprint(email)}
			})
			return Account{}, ErrEmailAlreadyExists
		}
		return Account{}, e.storeFailure(ctx, "register.create", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, "", nil, nil)
	account.PasswordHash = ""
	return account, nil
}

// Account returns the profile of accountID with the password hash cleared.
// A missing account is ErrResourceNotFound.
func (e *Engine) Account(ctx context.Context, accountID string) (Account, error) {
	if e == nil || e.accounts == nil {
		return Account{}, ErrEngineNotReady
	}
	account, err := e.accounts.AccountByID(ctx, accountID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return Account{}, ErrResourceNotFound
	case err != nil:
		return Account{}, e.storeFailure(ctx, "account.by_id", err)
	}
	account.PasswordHash = ""
	return account, nil
}

// plausibleEmail is a shape check only; deliverability is the notifier's concern.
func plausibleEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

// checkPolicy runs the password policy and maps violations onto
// ErrPasswordPolicy while keeping the violation list reachable.
func (e *Engine) checkPolicy(pw string) error {
	if err := e.config.Password.Policy.Check(pw); err != nil {
		return &PolicyViolationError{cause: err}
	}
	return nil
}

func (e *Engine) hashFailure(ctx context.Context, err error) error {
	if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
		return &PolicyViolationError{cause: err}
	}
	e.logger.ErrorContext(ctx, "authsession: password hashing failed", "error", err)
	return ErrInternal
}
