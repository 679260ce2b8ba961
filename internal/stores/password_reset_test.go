package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newResetStoreTest(t *testing.T) (*ResetTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewResetTokenStore(rdb, ResetConfig{TTL: time.Hour, MaxActivePerEmail: 3}), mr
}

func TestResetConsumeExactlyOnce(t *testing.T) {
	s, _ := newResetStoreTest(t)
	ctx := context.Background()

	token, issued, err := s.Issue(ctx, "Alice@Example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", issued.Email)
	}

	rec, err := s.Consume(ctx, token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !rec.Used || rec.UsedAt.IsZero() || rec.RequestIP != "10.0.0.1" {
		t.Fatalf("unexpected consumed record %+v", rec)
	}
	if _, err := s.Consume(ctx, token); !errors.Is(err, ErrResetNotFoundOrUsed) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
}

func TestResetConsumeRejectsEmptyUnknownAndExpired(t *testing.T) {
	s, _ := newResetStoreTest(t)
	ctx := context.Background()

	if _, err := s.Consume(ctx, "  "); !errors.Is(err, ErrResetEmpty) {
		t.Fatalf("expected ErrResetEmpty, got %v", err)
	}
	if _, err := s.Consume(ctx, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"); !errors.Is(err, ErrResetNotFoundOrUsed) {
		t.Fatalf("expected unknown token to fail, got %v", err)
	}

	token, _, _ := s.Issue(ctx, "bob@example.com", "")
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Consume(ctx, token); !errors.Is(err, ErrResetExpired) {
		t.Fatalf("expected ErrResetExpired, got %v", err)
	}
}

func TestResetTokensVanishAfterTTL(t *testing.T) {
	s, mr := newResetStoreTest(t)
	ctx := context.Background()
	token, _, _ := s.Issue(ctx, "carol@example.com", "")

	mr.FastForward(61 * time.Minute)
	if _, err := s.Consume(ctx, token); !errors.Is(err, ErrResetNotFoundOrUsed) {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestResetIssueEvictsOldestPastCap(t *testing.T) {
	s, _ := newResetStoreTest(t)
	ctx := context.Background()
	base := time.Now()
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	tokens := make([]string, 4)
	for i := range tokens {
		tok, _, err := s.Issue(ctx, "dave@example.com", "")
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		tokens[i] = tok
	}

	n, err := s.ActiveCount(ctx, "dave@example.com")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected cap of 3 active tokens, got %d", n)
	}
	if _, err := s.Consume(ctx, tokens[0]); !errors.Is(err, ErrResetNotFoundOrUsed) {
		t.Fatalf("oldest token must be evicted, got %v", err)
	}
	for _, tok := range tokens[1:] {
		if _, err := s.Consume(ctx, tok); err != nil {
			t.Fatalf("newer tokens must survive: %v", err)
		}
	}
}

func TestResetConcurrentConsumeFirstWriterWins(t *testing.T) {
	s, _ := newResetStoreTest(t)
	ctx := context.Background()
	token, _, _ := s.Issue(ctx, "erin@example.com", "")

	const workers = 8
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Consume(ctx, token)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrResetNotFoundOrUsed):
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestResetPruneExpired(t *testing.T) {
	s, mr := newResetStoreTest(t)
	ctx := context.Background()
	_, _, _ = s.Issue(ctx, "frank@example.com", "")
	mr.FastForward(30 * time.Minute)
	_, _, _ = s.Issue(ctx, "frank@example.com", "")
	mr.FastForward(31 * time.Minute)

	n, err := s.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one stale index entry, got %d", n)
	}
}

func TestResetRecordRoundTrip(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	in := &ResetRecord{ID: "id", Email: "a@b.c", RequestIP: "::1", CreatedAt: now, ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: now}
	data, err := encodeResetRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeResetRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if _, err := decodeResetRecord(data[:5]); err == nil {
		t.Fatal("truncated record must fail to decode")
	}
}
