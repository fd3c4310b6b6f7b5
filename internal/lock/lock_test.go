package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	locker, err := NewRedisLocker("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis locker: %v", err)
	}
	t.Cleanup(func() { _ = locker.Close() })
	return locker, s
}

func lockers(t *testing.T) map[string]Locker {
	redisLocker, _ := setupTestRedis(t)
	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": redisLocker,
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, err := locker.Acquire(ctx, DraftKey(1))
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}

			waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
			defer cancel()
			if _, err := locker.Acquire(waitCtx, DraftKey(1)); !errors.Is(err, ErrNotAcquired) {
				t.Fatalf("expected second acquire to time out, got %v", err)
			}

			other, err := locker.Acquire(ctx, DraftKey(2))
			if err != nil {
				t.Fatalf("different key should not block: %v", err)
			}
			other()

			release()
			release()
			again, err := locker.Acquire(ctx, DraftKey(1))
			if err != nil {
				t.Fatalf("acquire after release: %v", err)
			}
			again()
		})
	}
}

func TestAcquireSerializesCriticalSection(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				inside  int
				maxSeen int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := locker.Acquire(ctx, TreeKey(7))
					if err != nil {
						t.Errorf("acquire: %v", err)
						return
					}
					mu.Lock()
					inside++
					if inside > maxSeen {
						maxSeen = inside
					}
					mu.Unlock()
					time.Sleep(2 * time.Millisecond)
					mu.Lock()
					inside--
					mu.Unlock()
					release()
				}()
			}
			wg.Wait()
			if maxSeen != 1 {
				t.Fatalf("expected at most one holder, saw %d", maxSeen)
			}
		})
	}
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	locker, s := setupTestRedis(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, DraftKey(3))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate expiry and takeover by another instance.
	if err := s.Set(locker.key(DraftKey(3)), "someone-else"); err != nil {
		t.Fatalf("overwrite key: %v", err)
	}
	release()

	value, err := s.Get(locker.key(DraftKey(3)))
	if err != nil {
		t.Fatalf("expected key to survive release: %v", err)
	}
	if value != "someone-else" {
		t.Fatalf("unexpected holder %q", value)
	}
}

func TestRedisLockExpires(t *testing.T) {
	locker, s := setupTestRedis(t)
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, TreeKey(9)); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s.FastForward(2 * time.Minute)

	release, err := locker.Acquire(ctx, TreeKey(9))
	if err != nil {
		t.Fatalf("expected expired lock to be free: %v", err)
	}
	release()
}

func TestKeys(t *testing.T) {
	if DraftKey(12) != "draft:12" || TreeKey(4) != "tree:4" || EditorKey(4, 9) != "tree:4:editor:9" {
		t.Fatal("unexpected key format")
	}
}
