package authsession

import (
	"context"
	"errors"
	"testing"
)

func TestCheckRateEnforcesCapacityPerClient(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	client := ClientIdentity("203.0.113.9", "curl/8.0")

	for i := 0; i < 5; i++ {
		d, err := env.engine.CheckRate(ctx, RateLogin, client)
		if err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
		if !d.Allowed || d.Limit != 5 || d.Remaining > 4-i {
			t.Fatalf("request %d: unexpected decision %+v", i+1, d)
		}
	}

	_, err := env.engine.CheckRate(ctx, RateLogin, client)
	var rl *RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rl.RetryAfterSeconds() < 1 {
		t.Fatalf("expected positive retry-after, got %d", rl.RetryAfterSeconds())
	}

	other := ClientIdentity("203.0.113.10", "curl/8.0")
	if _, err := env.engine.CheckRate(ctx, RateLogin, other); err != nil {
		t.Fatalf("other client must have its own bucket, got %v", err)
	}
	if _, err := env.engine.CheckRate(ctx, RateRegister, client); err != nil {
		t.Fatalf("other class must have its own bucket, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricRateLimitHit] != 1 {
		t.Fatal("expected one rate-limit hit")
	}
}

func TestCheckRateBackendOutage(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mr.Close()
		d, err := env.engine.CheckRate(context.Background(), RateLogin, "client")
		if err != nil || !d.Allowed {
			t.Fatalf("expected admission, got %+v %v", d, err)
		}
	})
	t.Run("fail closed", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *Config) { cfg.RateLimit.FailClosed = true })
		env.mr.Close()
		if _, err := env.engine.CheckRate(context.Background(), RateLogin, "client"); !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestCheckRateDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.RateLimit.Enabled = false })
	for i := 0; i < 20; i++ {
		if _, err := env.engine.CheckRate(context.Background(), RateForgotPassword, "client"); err != nil {
			t.Fatalf("disabled limiter rejected request %d: %v", i+1, err)
		}
	}
}
