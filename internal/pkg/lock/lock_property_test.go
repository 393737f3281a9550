// Package lock provides keyed mutual exclusion.
// Property-based tests for concurrent credit safety and key cleanup.
package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestConcurrentCreditSafetyProperty checks that concurrent read-modify-write
// sequences under the same key produce the sequential result.
func TestConcurrentCreditSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		key := rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "key")

		expected := initial
		amounts := make([]int64, numOps)
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}

		l := New()
		credits := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				_ = l.WithLock(key, func() error {
					current := credits
					credits = current + amount
					return nil
				})
			}(amount)
		}
		wg.Wait()

		if credits != expected {
			t.Fatalf("credits mismatch: expected %d, got %d", expected, credits)
		}
		if l.Len() != 0 {
			t.Fatalf("expected no tracked keys after release, got %d", l.Len())
		}
	})
}

// TestIndependentKeysProperty checks that different keys never share a mutex.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		l := New()
		counters := make(map[string]*int, numKeys)
		for i := 0; i < numKeys; i++ {
			n := 0
			counters[fmt.Sprintf("user-%d", i)] = &n
		}

		var wg sync.WaitGroup
		for key, counter := range counters {
			for j := 0; j < opsPerKey; j++ {
				wg.Add(1)
				go func(key string, counter *int) {
					defer wg.Done()
					l.Lock(key)
					defer l.Unlock(key)
					*counter++
				}(key, counter)
			}
		}
		wg.Wait()

		for key, counter := range counters {
			if *counter != opsPerKey {
				t.Fatalf("key %s: expected %d, got %d", key, opsPerKey, *counter)
			}
		}
	})
}

// TestTryLockAdmitsOneHolderProperty models the in-flight purchase guard:
// while a key is held, every TryLock on it fails.
func TestTryLockAdmitsOneHolderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempts := rapid.IntRange(2, 20).Draw(t, "attempts")
		l := New()
		const key = "item-1"

		if !l.TryLock(key) {
			t.Fatal("first TryLock should succeed")
		}

		var admitted atomic.Int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				if l.TryLock(key) {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		if admitted.Load() != 0 {
			t.Fatalf("expected no second holder, got %d", admitted.Load())
		}
		l.Unlock(key)
		if !l.TryLock(key) {
			t.Fatal("key should be free after release")
		}
		l.Unlock(key)
	})
}

func TestLockWithTimeout(t *testing.T) {
	l := New()
	l.Lock("k")

	ok := l.LockWithTimeout(context.Background(), "k", 20*time.Millisecond)
	assert.False(t, ok)
	assert.True(t, l.IsLocked("k"))

	l.Unlock("k")
	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)

	ok = l.LockWithTimeout(context.Background(), "k", time.Second)
	require.True(t, ok)
	l.Unlock("k")
	assert.False(t, l.IsLocked("k"))
}

func TestWithLockContext_Timeout(t *testing.T) {
	l := New()
	l.Lock("k")
	defer l.Unlock("k")

	err := l.WithLockContext(context.Background(), "k", 10*time.Millisecond, func() error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}
