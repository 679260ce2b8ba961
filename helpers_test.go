package authsession

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Passw0rd!23"

// countingAccounts counts every AccountStore call.
type countingAccounts struct {
	*MemoryAccountStore
	calls atomic.Int64
}

func (c *countingAccounts) CreateAccount(ctx context.Context, a Account) error {
	c.calls.Add(1)
	return c.MemoryAccountStore.CreateAccount(ctx, a)
}

func (c *countingAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	c.calls.Add(1)
	return c.MemoryAccountStore.AccountByEmail(ctx, email)
}

func (c *countingAccounts) AccountByID(ctx context.Context, id string) (Account, error) {
	c.calls.Add(1)
	return c.MemoryAccountStore.AccountByID(ctx, id)
}

func (c *countingAccounts) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	c.calls.Add(1)
	return c.MemoryAccountStore.UpdatePasswordHash(ctx, id, hash)
}

// countingHasher counts Verify calls on the wrapped hasher.
type countingHasher struct {
	PasswordHasher
	verifies atomic.Int64
}

func (h *countingHasher) Verify(password, encodedHash string) (bool, error) {
	h.verifies.Add(1)
	return h.PasswordHasher.Verify(password, encodedHash)
}

// captureNotifier keeps the last reset token per email.
type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	sent   int
}

func (n *captureNotifier) NotifyPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	n.sent++
	return nil
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	accounts *countingAccounts
	hasher   *countingHasher
	notifier *captureNotifier
	sink     *recordingSink
}

// recordingSink collects audit events synchronously for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingSink) Emit(_ context.Context, e AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("k", 64))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Sweeper.Interval = 0
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := newDefaultHasher(cfg)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		accounts: &countingAccounts{MemoryAccountStore: NewMemoryAccountStore()},
		hasher:   &countingHasher{PasswordHasher: hasher},
		notifier: &captureNotifier{},
		sink:     &recordingSink{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.accounts).
		WithPasswordHasher(env.hasher).
		WithResetNotifier(env.notifier).
		WithAuditSink(env.sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		_ = engine.Close(context.Background())
		_ = rdb.Close()
	})
	return env
}

func (env *testEnv) register(t *testing.T, email, password string) Account {
	t.Helper()
	account, err := env.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Name:     "Test User",
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return account
}

func (env *testEnv) login(t *testing.T, email, password string) *TokenPair {
	t.Helper()
	pair, err := env.engine.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return pair
}
