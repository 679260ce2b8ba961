package authsession

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterAssignsDefaultRoleAndHidesHash(t *testing.T) {
	env := newTestEnv(t, nil)

	account, err := env.engine.Register(context.Background(), RegisterInput{
		Email:    "  Alice@Example.COM ",
		Name:     " Alice ",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", account.Name)
	}
	if !account.HasRole(DefaultRole) || len(account.Roles) != 1 {
		t.Fatalf("expected roles [%s], got %v", DefaultRole, account.Roles)
	}
	if account.PasswordHash != "" {
		t.Fatal("register must not return the password hash")
	}

	stored, err := env.accounts.AccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == testPassword {
		t.Fatalf("expected a stored hash, got %q", stored.PasswordHash)
	}
}

func TestRegisterRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", testPassword)

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"duplicate email any case", RegisterInput{Email: "ALICE@example.com", Password: testPassword}, ErrEmailAlreadyExists},
		{"missing at sign", RegisterInput{Email: "alice.example.com", Password: testPassword}, ErrInvalidInput},
		{"empty email", RegisterInput{Email: "  ", Password: testPassword}, ErrInvalidInput},
		{"too short", RegisterInput{Email: "bob@example.com", Password: "Aa1!"}, ErrPasswordPolicy},
		{"no digit", RegisterInput{Email: "bob@example.com", Password: "Password!!xx"}, ErrPasswordPolicy},
		{"no special", RegisterInput{Email: "bob@example.com", Password: "Password1234"}, ErrPasswordPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Register(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	var pv *PolicyViolationError
	_, err := env.engine.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "short"})
	if !errors.As(err, &pv) || len(pv.Violations()) == 0 {
		t.Fatalf("expected policy violations, got %v", err)
	}
}

func TestLoginReturnsBearerPair(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.register(t, "alice@example.com", testPassword)

	pair := env.login(t, "  ALICE@example.com", testPassword)
	if pair.TokenType != "Bearer" {
		t.Fatalf("expected Bearer, got %q", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}
	if pair.RefreshExpiresIn != int64((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected refresh_expires_in %d", pair.RefreshExpiresIn)
	}

	result, err := env.engine.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.AccountID != account.ID || result.TokenID == "" {
		t.Fatalf("unexpected auth result %+v", result)
	}
}

func TestLoginUnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", testPassword)

	_, errUnknown := env.engine.Login(context.Background(), "nobody@example.com", testPassword)
	_, errWrong := env.engine.Login(context.Background(), "alice@example.com", "Wrong-Passw0rd")

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error messages differ: %q vs %q", errUnknown, errWrong)
	}
	// The unknown email is verified against the dummy hash.
	if got := env.hasher.verifies.Load(); got != 2 {
		t.Fatalf("expected 2 verifier calls, got %d", got)
	}
}

func TestFiveFailuresLockWithoutVerifying(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", testPassword)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := env.engine.Login(ctx, "alice@example.com", "Wrong-Passw0rd")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	verifies := env.hasher.verifies.Load()
	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)

	var locked *LockedError
	if !errors.As(err, &locked) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if m := locked.RemainingMinutes(); m < 14 || m > 15 {
		t.Fatalf("expected about 15 minutes remaining, got %d", m)
	}
	if got := env.hasher.verifies.Load(); got != verifies {
		t.Fatalf("locked login reached the verifier (%d calls)", got-verifies)
	}
	if snap := env.engine.MetricsSnapshot(); snap.Counters[MetricAccountLocked] != 1 || snap.Counters[MetricLoginLocked] != 1 {
		t.Fatalf("unexpected lock counters %v", snap.Counters)
	}
}

func TestLockExpiresAfterDuration(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.MaxAttempts = 2
		cfg.Lockout.Duration = time.Minute
	})
	env.register(t, "alice@example.com", testPassword)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "Wrong-Passw0rd")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock, got %v", err)
	}

	env.mr.FastForward(2 * time.Minute)

	env.login(t, "alice@example.com", testPassword)
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", testPassword)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "Wrong-Passw0rd")
	}
	if n, _ := env.engine.guard.RemainingAttempts(ctx, "alice@example.com"); n != 1 {
		t.Fatalf("expected 1 remaining attempt, got %d", n)
	}

	env.login(t, "alice@example.com", testPassword)

	if n, _ := env.engine.guard.RemainingAttempts(ctx, "alice@example.com"); n != 5 {
		t.Fatalf("expected counter reset to 5 remaining, got %d", n)
	}
	for i := 0; i < 4; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "Wrong-Passw0rd"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d after reset: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
}

func TestUnknownEmailFailuresLockTheIdentifier(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "ghost@example.com", testPassword)
	}
	if _, err := env.engine.Login(ctx, "ghost@example.com", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected unknown identifier to lock, got %v", err)
	}
}

func TestDisabledAccountCannotLoginOrRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.register(t, "alice@example.com", testPassword)
	pair := env.login(t, "alice@example.com", testPassword)

	if err := env.accounts.SetDisabled(context.Background(), account.ID, true); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for disabled account, got %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on refresh, got %v", err)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.register(t, "alice@example.com", testPassword)

	weak, err := newDefaultHasher(func() Config {
		cfg := testConfig()
		cfg.Password.KeyLength = 16
		return cfg
	}())
	if err != nil {
		t.Fatalf("weak hasher: %v", err)
	}
	weakHash, err := weak.Hash(testPassword)
	if err != nil {
		t.Fatalf("weak hash: %v", err)
	}
	if err := env.accounts.UpdatePasswordHash(context.Background(), account.ID, weakHash); err != nil {
		t.Fatalf("store weak hash: %v", err)
	}

	env.login(t, "alice@example.com", testPassword)

	stored, _ := env.accounts.AccountByID(context.Background(), account.ID)
	if stored.PasswordHash == weakHash {
		t.Fatal("expected hash to be upgraded on login")
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordHashUpgraded] != 1 {
		t.Fatal("expected upgrade metric")
	}
	env.login(t, "alice@example.com", testPassword)
}

func TestLoginStoreOutageIsNotInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice@example.com", testPassword)
	env.mr.Close()

	_, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("outage must not read as invalid credentials")
	}
}
