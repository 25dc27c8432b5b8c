package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis runs an in-memory Redis so tests need no server.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestLockPoll_ExclusiveUntilUnlocked(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, time.Minute, nil)
	ctx := context.Background()

	locked, err := r.LockPoll(ctx, "A1B2C3D4", "req-1")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = r.LockPoll(ctx, "A1B2C3D4", "req-2")
	require.NoError(t, err)
	assert.False(t, locked, "second poller must wait")

	// other tickets are independent
	locked, err = r.LockPoll(ctx, "FFFF0000", "req-2")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, r.UnlockPoll(ctx, "A1B2C3D4", "req-1"))

	locked, err = r.LockPoll(ctx, "A1B2C3D4", "req-2")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestUnlockPoll_IgnoresForeignOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRedis(client, time.Minute, nil)
	ctx := context.Background()

	locked, err := r.LockPoll(ctx, "A1B2C3D4", "req-1")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, r.UnlockPoll(ctx, "A1B2C3D4", "req-2"))
	assert.True(t, mr.Exists(pollLockPrefix+"A1B2C3D4"))

	// unlocking a missing key is fine
	require.NoError(t, r.UnlockPoll(ctx, "MISSING0", "req-1"))
}

func TestLockPoll_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRedis(client, 5*time.Second, nil)
	ctx := context.Background()

	locked, err := r.LockPoll(ctx, "A1B2C3D4", "req-1")
	require.NoError(t, err)
	require.True(t, locked)

	mr.FastForward(6 * time.Second)

	locked, err = r.LockPoll(ctx, "A1B2C3D4", "req-2")
	require.NoError(t, err)
	assert.True(t, locked, "expired lock must not block forever")
}

func TestLockPoll_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, time.Minute, nil)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.LockPoll(ctx, "A1B2C3D4", "req")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestNewRedisDefaultTTL(t *testing.T) {
	r := NewRedis(nil, 0, nil)
	assert.Equal(t, 15*time.Second, r.LockTTL)
}

// TestRedisIntegration runs the poll lock against a real Redis container.
func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker unavailable: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	r := NewRedis(client, time.Minute, nil)

	locked, err := r.LockPoll(ctx, "A1B2C3D4", "req-1")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = r.LockPoll(ctx, "A1B2C3D4", "req-2")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, r.UnlockPoll(ctx, "A1B2C3D4", "req-1"))
	require.NoError(t, r.Ping(ctx))
}
