package redisstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shelfmart/authcore/pkg/domain"
)

func newTestStore(t *testing.T) *LockoutStore {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis test - TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	return NewLockoutStore(client, Options{Prefix: "authcore-test:" + uuid.NewString() + ":"})
}

func TestParseState(t *testing.T) {
	tests := []struct {
		name    string
		vals    []any
		want    int
		locked  bool
		wantErr bool
	}{
		{"missing key", []any{nil, nil, nil}, 0, false, false},
		{"counting", []any{"2", nil, nil}, 2, false, false},
		{"locked", []any{"5", "1772366400000", "1772365500000"}, 5, true, false},
		{"short reply", []any{"1"}, 0, false, true},
		{"garbage", []any{"x", nil, nil}, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := parseState(tt.vals)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if st.FailedAttempts != tt.want {
				t.Errorf("FailedAttempts = %d, want %d", st.FailedAttempts, tt.want)
			}
			if (st.LockedUntil != nil) != tt.locked {
				t.Errorf("LockedUntil = %v, want locked %v", st.LockedUntil, tt.locked)
			}
		})
	}
}

func TestLockoutStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	policy := domain.LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var st domain.LockoutState
	var err error
	for i := 0; i < 3; i++ {
		st, err = store.ReserveAttempt(ctx, userID, policy, now)
		if err != nil {
			t.Fatalf("ReserveAttempt() error = %v", err)
		}
	}
	owned := st.LockedAt
	st, err = store.ReserveAttempt(ctx, userID, policy, now)
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("ReserveAttempt() during lock error = %v, want ErrAccountLocked", err)
	}
	if st.FailedAttempts != 3 {
		t.Errorf("FailedAttempts = %d, want 3", st.FailedAttempts)
	}
	if !st.IsLocked(now) || !st.LockedUntil.Equal(now.Add(policy.Duration)) {
		t.Errorf("LockedUntil = %v, want %v", st.LockedUntil, now.Add(policy.Duration))
	}

	if err := store.ReleaseAttempt(ctx, userID, nil, now); !errors.Is(err, domain.ErrAccountLocked) {
		t.Errorf("ReleaseAttempt() without owning the lock error = %v, want ErrAccountLocked", err)
	}
	if err := store.ReleaseAttempt(ctx, userID, owned, now); err != nil {
		t.Fatalf("ReleaseAttempt() by the lock owner error = %v", err)
	}
	if st, _ = store.GetLockout(ctx, userID); st.FailedAttempts != 0 || st.LockedUntil != nil {
		t.Errorf("state after release = %+v, want empty", st)
	}
	for i := 0; i < 3; i++ {
		_, _ = store.ReserveAttempt(ctx, userID, policy, now)
	}

	if err := store.ResetFailures(ctx, userID, now); err != nil {
		t.Fatalf("ResetFailures() error = %v", err)
	}
	st, _ = store.GetLockout(ctx, userID)
	if st.FailedAttempts != 0 || !st.IsLocked(now) {
		t.Errorf("state = %+v, want lock kept with zero attempts", st)
	}

	if err := store.ResetFailures(ctx, userID, now.Add(policy.Duration)); err != nil {
		t.Fatalf("ResetFailures() error = %v", err)
	}
	st, _ = store.GetLockout(ctx, userID)
	if st.LockedUntil != nil {
		t.Errorf("LockedUntil = %v, want nil after elapsed reset", st.LockedUntil)
	}

	_, _ = store.ReserveAttempt(ctx, userID, policy, now)
	if err := store.ClearLockout(ctx, userID); err != nil {
		t.Fatalf("ClearLockout() error = %v", err)
	}
	st, _ = store.GetLockout(ctx, userID)
	if st.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d after clear, want 0", st.FailedAttempts)
	}
}

func TestLockoutStore_ConcurrentFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	policy := domain.LockoutPolicy{Threshold: 1000, Duration: time.Minute}
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ReserveAttempt(ctx, userID, policy, now); err != nil {
				t.Errorf("ReserveAttempt() error = %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := store.GetLockout(ctx, userID)
	if err != nil {
		t.Fatalf("GetLockout() error = %v", err)
	}
	if st.FailedAttempts != 50 {
		t.Errorf("FailedAttempts = %d, want 50", st.FailedAttempts)
	}
}
