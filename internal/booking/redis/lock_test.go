package redis_test

import (
	"context"
	"testing"

	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestLockIntegration exercises the booking lock against a real Redis container.
func TestLockIntegration(t *testing.T) {
	// Skip if short test mode
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port.Port(),
		Password: "",
		DB:       0,
	})
	defer client.Close()

	lock := bookingredis.NewLock(client)

	// Acquire the lock for one booking
	ok, err := lock.Acquire(ctx, models.KindActivity, "bk-1", "webhook-1001")
	require.NoError(t, err)
	assert.True(t, ok, "Expected lock to be acquirable")

	// A second owner cannot take the held lock
	ok, err = lock.Acquire(ctx, models.KindActivity, "bk-1", "job-expire")
	require.NoError(t, err)
	assert.False(t, ok, "Expected lock to be held by webhook-1001")

	// Locks are scoped per kind and booking id
	ok, err = lock.Acquire(ctx, models.KindEvent, "bk-1", "job-expire")
	require.NoError(t, err)
	assert.True(t, ok, "Expected a different kind to lock independently")

	// Release by a non-owner leaves the lock alone
	err = lock.Release(ctx, models.KindActivity, "bk-1", "job-expire")
	require.NoError(t, err)
	ok, err = lock.Acquire(ctx, models.KindActivity, "bk-1", "job-expire")
	require.NoError(t, err)
	assert.False(t, ok, "Expected non-owner release to be a no-op")

	// Release by the owner frees it
	err = lock.Release(ctx, models.KindActivity, "bk-1", "webhook-1001")
	require.NoError(t, err)
	ok, err = lock.Acquire(ctx, models.KindActivity, "bk-1", "job-expire")
	require.NoError(t, err)
	assert.True(t, ok, "Expected lock to be free after owner release")

	// Releasing a lock that was never taken is harmless
	err = lock.Release(ctx, models.KindPackage, "bk-9", "nobody")
	assert.NoError(t, err)
}
