package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resendKeyPrefix = "verify_resend:"

// ResendThrottle enforces a minimum interval between token resends per
// user. The interval key is claimed with SET NX so the check is atomic
// across service instances.
type ResendThrottle struct {
	client   *redis.Client
	interval time.Duration
}

func NewResendThrottle(client *redis.Client, interval time.Duration) *ResendThrottle {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ResendThrottle{client: client, interval: interval}
}

func (t *ResendThrottle) Allow(ctx context.Context, userID string) (bool, error) {
	claimed, err := t.client.SetNX(ctx, resendKeyPrefix+userID, 1, t.interval).Result()
	if err != nil {
		return false, fmt.Errorf("claim resend interval: %w", err)
	}

	return claimed, nil
}
