package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook counting commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func newCountedStore(t *testing.T) (*Store, *cmdCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Connection setup commands are not part of any budget.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	return NewStore(rdb, Config{RefreshTTL: time.Hour, Prefix: "ars"}), counter
}

func TestRedisBudgetIssue(t *testing.T) {
	store, counter := newCountedStore(t)

	if _, _, err := store.Issue(context.Background(), "acct-1", DeviceMeta{}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := counter.pipelines.Load(); got != 1 {
		t.Fatalf("issue should be one transaction, got %d pipelines", got)
	}
	if got := counter.commands.Load(); got != 0 {
		t.Fatalf("issue should send no standalone commands, got %d", got)
	}
}

func TestRedisBudgetValidate(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	raw, _, err := store.Issue(ctx, "acct-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	counter.reset()

	if _, err := store.Validate(ctx, raw); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := counter.commands.Load(); got != 2 {
		t.Fatalf("validate budget is index GET plus HGETALL, got %d commands", got)
	}

	counter.reset()
	if _, err := store.Validate(ctx, "not-a-secret"); err == nil {
		t.Fatal("expected malformed secret to be rejected")
	}
	if got := counter.commands.Load(); got != 0 {
		t.Fatalf("malformed secrets must not reach redis, got %d commands", got)
	}
}

func TestRedisBudgetRotate(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	raw, _, err := store.Issue(ctx, "acct-1", DeviceMeta{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// The first run loads the script; later runs hit EVALSHA only.
	raw, _, err = store.Rotate(ctx, raw)
	if err != nil {
		t.Fatalf("warmup rotate: %v", err)
	}
	counter.reset()

	if _, _, err := store.Rotate(ctx, raw); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if got := counter.commands.Load(); got != 2 {
		t.Fatalf("rotate budget is one script call plus HGETALL, got %d commands", got)
	}
}
