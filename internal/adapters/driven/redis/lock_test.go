package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestNewLock(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewLock(client)

	if lock == nil {
		t.Fatal("expected non-nil lock")
	}
	if lock.ownerID == "" {
		t.Error("expected non-empty owner ID")
	}
	if NewLock(client).OwnerID() == lock.OwnerID() {
		t.Error("expected unique owner IDs")
	}
}

func TestLock_Acquire_AlreadyHeld(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	acquired, err := lock1.Acquire(ctx, "replace:sub-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected first lock to acquire")
	}

	acquired, err = lock2.Acquire(ctx, "replace:sub-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected second lock to fail")
	}

	// Other subscriptions are independent
	acquired, err = lock2.Acquire(ctx, "replace:sub-2", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected lock on another name to succeed")
	}
}

func TestLock_Acquire_Expires(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	if ok, _ := lock1.Acquire(ctx, "replace:sub-1", 5*time.Second); !ok {
		t.Fatal("expected first acquire to succeed")
	}

	mr.FastForward(6 * time.Second)

	acquired, err := lock2.Acquire(ctx, "replace:sub-1", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected acquire after TTL expiry to succeed")
	}
}

func TestLock_Release(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewLock(client)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "replace:sub-1", 10*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	if err := lock.Release(ctx, "replace:sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(lockPrefix + "replace:sub-1") {
		t.Error("expected lock key to be deleted")
	}

	// Releasing again is a no-op
	if err := lock.Release(ctx, "replace:sub-1"); err != nil {
		t.Errorf("unexpected error releasing unheld lock: %v", err)
	}
}

func TestLock_Release_ByDifferentOwner(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	owner := NewLock(client)
	other := NewLock(client)
	ctx := context.Background()

	if ok, _ := owner.Acquire(ctx, "replace:sub-1", 10*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	if err := other.Release(ctx, "replace:sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, err := mr.Get(lockPrefix + "replace:sub-1")
	if err != nil {
		t.Fatalf("expected lock to survive foreign release: %v", err)
	}
	if value != owner.OwnerID() {
		t.Errorf("expected owner %s, got %s", owner.OwnerID(), value)
	}
}

func TestLock_Ping(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	if err := NewLock(client).Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}

func TestLock_Acquire_Unavailable(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewLock(client)
	mr.Close()

	_, err := lock.Acquire(context.Background(), "replace:sub-1", time.Second)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}
