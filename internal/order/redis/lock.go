package redis

import (
	"context"
	"time"

	"ms-tickets/internal/logger"

	"github.com/go-redis/redis/v8"
)

const pollLockPrefix = "payment_poll:"

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serialises gateway status polls per ticket across instances.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &Redis{
		Client:  client,
		LockTTL: lockTTL,
		Logger:  log,
	}
}

// LockPoll reports whether owner acquired the poll lock for ticketID.
func (r *Redis) LockPoll(ctx context.Context, ticketID, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, pollLockPrefix+ticketID, owner, r.LockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		r.Logger.Debug("REDIS", "Poll already in flight for "+ticketID)
	}
	return ok, nil
}

// UnlockPoll releases the lock if owner still holds it.
func (r *Redis) UnlockPoll(ctx context.Context, ticketID, owner string) error {
	err := unlockScript.Run(ctx, r.Client, []string{pollLockPrefix + ticketID}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Ping is used by the health check.
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
