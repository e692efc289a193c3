package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leasePrefix = "lease:v1:"

// ErrLeaseHeld is returned when another instance holds the lease.
var ErrLeaseHeld = errors.New("lease held by another instance")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`)

// Lease keeps scheduled jobs from overlapping across instances. The
// transition guards in the database stay authoritative; the lease only
// avoids wasted work.
type Lease struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLease builds a lease that expires after ttl unless released.
func NewLease(client *redis.Client, ttl time.Duration) *Lease {
	return &Lease{client: client, ttl: ttl}
}

// Acquire takes the named lease and returns its release function.
func (l *Lease) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := leasePrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lease %s: %w", name, err)
		}
		return nil
	}, nil
}
