package redisclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-queue-backend/internal/lock"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_ReleasesKey(t *testing.T) {
	mr, client := newTestClient(t)
	l := NewRedisLocker(client, 5*time.Second, time.Second)

	err := l.WithLock(context.Background(), "queue:Dr. Chen:2024-12-13", func(ctx context.Context) error {
		if !mr.Exists("lock:queue:Dr. Chen:2024-12-13") {
			t.Error("expected lock key to exist inside critical section")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists("lock:queue:Dr. Chen:2024-12-13") {
		t.Error("expected lock key to be deleted after release")
	}
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	_, client := newTestClient(t)
	l := NewRedisLocker(client, 5*time.Second, 2*time.Second)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	holding := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(holding)
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		<-holding
		err := l.WithLock(context.Background(), "k", func(context.Context) error {
			mu.Lock()
			order = append(order, 2)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected second holder to run after first, got %v", order)
	}
}

func TestRedisLocker_NotAcquiredAfterWait(t *testing.T) {
	mr, client := newTestClient(t)
	l := NewRedisLocker(client, 5*time.Second, 30*time.Millisecond)

	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("seed lock key: %v", err)
	}

	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		t.Error("critical section must not run")
		return nil
	})
	if !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	got, _ := mr.Get("lock:k")
	if got != "someone-else" {
		t.Errorf("foreign lock must be left untouched, got %q", got)
	}
}
