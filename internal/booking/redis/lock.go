package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"log"

	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

// Lock serializes mutations on a single booking between webhook
// reconciliation and the time-driven jobs. It reduces contention only; the
// conditional status update at write time is what guarantees correctness, so
// a lost or expired lock never corrupts state.
type Lock struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewLock(client *redis.Client) *Lock {
	return &Lock{
		Client: client,
		Logger: log.Default(),
	}
}

// getLockDuration returns the booking lock TTL from the environment or the
// default value.
func (r *Lock) getLockDuration() time.Duration {
	defaultDuration := 30 * time.Second

	ttlStr := os.Getenv("BOOKING_LOCK_TTL_SECONDS")
	if ttlStr == "" {
		return defaultDuration
	}

	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid BOOKING_LOCK_TTL_SECONDS value '" + ttlStr + "', using default 30 seconds")
		return defaultDuration
	}
	return time.Duration(ttlSec) * time.Second
}

func lockKey(kind models.BookingKind, bookingID string) string {
	return fmt.Sprintf("booking_lock:%s:%s", kind, bookingID)
}

// Acquire takes the lock for the given owner. Returns false when another
// owner holds it; callers skip the record and rely on the next delivery or
// tick to self-heal.
func (r *Lock) Acquire(ctx context.Context, kind models.BookingKind, bookingID, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(kind, bookingID), owner, r.getLockDuration()).Result()
	return ok, err
}

// Release drops the lock if the owner still holds it. A lock that expired and
// was re-acquired by someone else is left alone.
func (r *Lock) Release(ctx context.Context, kind models.BookingKind, bookingID, owner string) error {
	key := lockKey(kind, bookingID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
