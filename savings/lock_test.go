package savings_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/savings"
)

// =============================================================================
// KEYED LOCKER
// =============================================================================

func TestKeyedLocker_SerializesSameGoal(t *testing.T) {
	l := savings.NewKeyedLocker(0)
	id := generic.NewGoalID()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, id)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, l.Held(), "entries are dropped after the last holder")
}

func TestKeyedLocker_DifferentGoalsDoNotContend(t *testing.T) {
	l := savings.NewKeyedLocker(0)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, generic.NewGoalID())
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, generic.NewGoalID())
	require.NoError(t, err)
	unlockB()
}

func TestKeyedLocker_HonorsContext(t *testing.T) {
	l := savings.NewKeyedLocker(0)
	id := generic.NewGoalID()

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, id)
	assert.ErrorIs(t, err, generic.ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second release is a no-op
	assert.Equal(t, 0, l.Held())
}

func TestKeyedLocker_WaitTimeout(t *testing.T) {
	l := savings.NewKeyedLocker(10 * time.Millisecond)
	id := generic.NewGoalID()

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), id)
	assert.ErrorIs(t, err, generic.ErrLockTimeout)
}

// =============================================================================
// REDIS LOCKER
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := savings.DialRedis(context.Background(), &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := savings.NewRedisLocker(client, savings.RedisLockerOptions{
		KeyPrefix:    "test:",
		TTL:          time.Second,
		WaitTimeout:  30 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	})
	id := generic.NewGoalID()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, id)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:goal-lock:"+string(id)))

	_, err = l.Lock(ctx, id)
	assert.ErrorIs(t, err, generic.ErrLockTimeout, "second holder must wait")

	unlock()
	assert.False(t, mr.Exists("test:goal-lock:"+string(id)))

	unlock2, err := l.Lock(ctx, id)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	// GIVEN: Holder A whose lease expired and holder B who took the lock
	// WHEN: A releases late
	// THEN: B's lock is still in place
	mr, client := setupTestRedis(t)
	l := savings.NewRedisLocker(client, savings.RedisLockerOptions{TTL: 100 * time.Millisecond})
	id := generic.NewGoalID()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, id)
	require.NoError(t, err)
	mr.FastForward(200 * time.Millisecond)

	unlockB, err := l.Lock(ctx, id)
	require.NoError(t, err)

	unlockA()
	assert.True(t, mr.Exists("goal-lock:"+string(id)))

	unlockB()
	assert.False(t, mr.Exists("goal-lock:"+string(id)))
}

func TestRedisLocker_WithGoals(t *testing.T) {
	_, client := setupTestRedis(t)
	goals, mem := newGoals(t, savings.Options{
		Locker: savings.NewRedisLocker(client, savings.RedisLockerOptions{PollInterval: time.Millisecond}),
	})
	ctx := context.Background()
	g := createGoal(t, goals, "1000")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := goals.Deposit(ctx, g.ID, deposit("2"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := goals.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(dec("20")))
	requireInvariant(t, mem, g.ID)
}
