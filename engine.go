package authsession

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/limiters"
	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/internal/stores"
	"github.com/MrEthical07/authsession/jwt"
	pwhash "github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/revocation"
	"github.com/MrEthical07/authsession/session"
)

// Engine is the session orchestrator. It composes the token signer,
// revocation cache, refresh store, login guard, rate limiter and reset
// store into the account lifecycle flows. Build one with New().Build();
// it is safe for concurrent use.
type Engine struct {
	config     Config
	accounts   AccountStore
	refresh    RefreshStore
	jwt        *jwt.Manager
	revocation *revocation.Cache
	guard      *limiters.LoginGuard
	limiter    *rate.Limiter
	resets     *stores.ResetTokenStore
	hasher     PasswordHasher
	dummyHash  string
	notifier   ResetNotifier
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time

	sweeperMu   sync.Mutex
	sweeperStop context.CancelFunc
	sweeperDone chan struct{}
}

// Close stops the sweeper and drains pending audit events.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.StopSweeper()
	return e.audit.Close(ctx)
}

// AuditDropped reports how many audit events were not delivered.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// RefreshTTL is the lifetime of newly issued refresh sessions.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Refresh.TTL
}

// storeFailure logs a backend failure and returns the retryable public
// error. The cause is not part of the returned error.
func (e *Engine) storeFailure(ctx context.Context, op string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.WarnContext(ctx, "authsession: backend failure", "op", op, "error", err)
	e.emitAudit(ctx, auditEventStoreUnavailable, false, "", "", ErrStoreUnavailable, func() map[string]string {
		return map[string]string{"op": op}
	})
	return ErrStoreUnavailable
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates email and password and opens a new refresh session.
//
// The lock check runs before any password work, so a locked identifier never
// reaches the verifier. Unknown emails, wrong passwords and disabled accounts
// all record a failure and return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	locked, remaining, err := e.guard.IsLocked(ctx, email)
	if err != nil {
		return nil, e.storeFailure(ctx, "login.is_locked", err)
	}
	if locked {
		lockErr := &LockedError{Remaining: remaining}
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, "", "", lockErr, nil)
		return nil, lockErr
	}

	account, err := e.accounts.AccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		_, _ = e.hasher.Verify(password, e.dummyHash)
		return nil, e.loginFailure(ctx, email, "")
	case err != nil:
		return nil, e.storeFailure(ctx, "login.account_by_email", err)
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		ok = false
		if !errors.Is(err, pwhash.ErrPasswordTooLong) {
			e.logger.WarnContext(ctx, "authsession: stored password hash unusable", "account_id", account.ID, "error", err)
		}
	}
	if !ok || account.Disabled {
		return nil, e.loginFailure(ctx, email, account.ID)
	}

	if err := e.guard.RecordSuccess(ctx, email); err != nil {
		return nil, e.storeFailure(ctx, "login.record_success", err)
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, account, password)
	}

	pair, rec, err := e.issuePair(ctx, account.ID)
	if err != nil {
		return nil, e.storeFailure(ctx, "login.issue", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, rec.ID, nil, nil)
	return pair, nil
}

func (e *Engine) loginFailure(ctx context.Context, email, accountID string) error {
	nowLocked, err := e.guard.RecordFailure(ctx, email)
	if err != nil {
		return e.storeFailure(ctx, "login.record_failure", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email_fp": internal.Fingerprint(email)}
	})
	if nowLocked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, accountID, "", ErrAccountLocked, nil)
	}
	return ErrInvalidCredentials
}

// upgradeHash re-hashes a verified password with the current parameters.
// Failures are logged and never fail the login.
func (e *Engine) upgradeHash(ctx context.Context, account Account, password string) {
	needs, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.WarnContext(ctx, "authsession: password rehash failed", "account_id", account.ID, "error", err)
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "authsession: password rehash not stored", "account_id", account.ID, "error", err)
		return
	}
	e.metricInc(MetricPasswordHashUpgraded)
}

// issueAccess signs an access token and, with subject tracking on, records
// its jti for LogoutAll.
func (e *Engine) issueAccess(ctx context.Context, accountID string) (string, jwt.Claims, error) {
	token, claims, err := e.jwt.IssueAccess(accountID)
	if err != nil {
		return "", jwt.Claims{}, err
	}
	if e.config.Revocation.TrackSubjects {
		if err := e.revocation.Track(ctx, accountID, claims.ID, claims.ExpiresAt); err != nil {
			return "", jwt.Claims{}, err
		}
	}
	return token, claims, nil
}

func (e *Engine) issuePair(ctx context.Context, accountID string) (*TokenPair, *session.Record, error) {
	access, _, err := e.issueAccess(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	refresh, rec, err := e.refresh.Issue(ctx, accountID, deviceFromContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	return e.pair(access, refresh), rec, nil
}

func (e *Engine) pair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(e.config.JWT.AccessTTL / time.Second),
		RefreshExpiresIn: int64(e.config.Refresh.TTL / time.Second),
	}
}

// Refresh exchanges a refresh secret for a new pair. The old secret is
// revoked in the same step that creates its successor; presenting it again
// returns ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}

	rec, err := e.refresh.Validate(ctx, refreshToken)
	if err != nil {
		return nil, e.refreshFailure(ctx, rec, err)
	}

	account, err := e.accounts.AccountByID(ctx, rec.AccountID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return nil, e.refreshFailure(ctx, rec, session.ErrNotFound)
	case err != nil:
		return nil, e.storeFailure(ctx, "refresh.account_by_id", err)
	case account.Disabled:
		return nil, e.refreshFailure(ctx, rec, session.ErrNotFound)
	}

	next, nextRec, err := e.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, e.refreshFailure(ctx, rec, err)
	}

	access, _, err := e.issueAccess(ctx, account.ID)
	if err != nil {
		// The old secret is already dead; the client must log in again.
		return nil, e.storeFailure(ctx, "refresh.issue_access", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, account.ID, nextRec.ID, nil, func() map[string]string {
		return map[string]string{"previous_session": rec.ID}
	})
	return e.pair(access, next), nil
}

func (e *Engine) refreshFailure(ctx context.Context, rec *session.Record, err error) error {
	var accountID, sessionID string
	if rec != nil {
		accountID, sessionID = rec.AccountID, rec.ID
	}

	var public error
	switch {
	case errors.Is(err, session.ErrRevoked):
		public = ErrTokenRevoked
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, accountID, sessionID, public, nil)
	case errors.Is(err, session.ErrExpired):
		public = ErrTokenExpired
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorrupt):
		public = ErrTokenInvalid
	default:
		return e.storeFailure(ctx, "refresh", err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, accountID, sessionID, public, nil)
	return public
}

// ValidateAccess verifies a bearer access token, including the revocation
// check. Every verification failure is ErrTokenInvalid; a revocation
// backend outage is ErrStoreUnavailable.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil || e.jwt == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	claims, err := e.jwt.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, jwt.ErrDenylistUnavailable) {
			return nil, e.storeFailure(ctx, "validate.denylist", err)
		}
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		AccountID: claims.Subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Logout revokes one refresh session. When accessToken is non-empty and
// still verifies, its jti is blacklisted too. Logging out an already
// revoked or expired session succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrTokenInvalid
	}

	rec, err := e.refresh.Validate(ctx, refreshToken)
	switch {
	case err == nil:
		if err := e.refresh.Revoke(ctx, refreshToken); err != nil && !errors.Is(err, session.ErrRevoked) {
			if errors.Is(err, session.ErrNotFound) {
				return ErrTokenInvalid
			}
			return e.storeFailure(ctx, "logout.revoke", err)
		}
	case errors.Is(err, session.ErrRevoked), errors.Is(err, session.ErrExpired):
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorrupt):
		return ErrTokenInvalid
	default:
		return e.storeFailure(ctx, "logout.validate", err)
	}

	var accountID, sessionID string
	if rec != nil {
		accountID, sessionID = rec.AccountID, rec.ID
	}

	if accessToken != "" && accountID != "" {
		if claims, perr := e.jwt.Parse(accessToken); perr == nil && claims.Subject == accountID {
			if err := e.revocation.Blacklist(ctx, claims.ID); err != nil {
				return e.storeFailure(ctx, "logout.blacklist", err)
			}
		}
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, accountID, sessionID, nil, nil)
	return nil
}

// LogoutAll revokes every refresh session of the token's account and
// blacklists the presented access token. With subject tracking on, every
// other outstanding access token of the account is blacklisted as well.
func (e *Engine) LogoutAll(ctx context.Context, accessToken string) error {
	result, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	revoked, err := e.refresh.RevokeAll(ctx, result.AccountID)
	if err != nil {
		return e.storeFailure(ctx, "logout_all.revoke_all", err)
	}
	if err := e.revocation.Blacklist(ctx, result.TokenID); err != nil {
		return e.storeFailure(ctx, "logout_all.blacklist", err)
	}
	blacklisted, err := e.revocation.BlacklistAllForSubject(ctx, result.AccountID)
	if err != nil {
		return e.storeFailure(ctx, "logout_all.blacklist_subject", err)
	}

	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricSessionRevoked, uint64(revoked))
	e.emitAudit(ctx, auditEventLogoutAll, true, result.AccountID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions_revoked":   strconv.Itoa(revoked),
			"tokens_blacklisted": strconv.Itoa(blacklisted),
		}
	})
	return nil
}
