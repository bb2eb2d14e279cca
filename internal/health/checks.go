package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentraproxy/sentra/internal/bus"
)

// RedisCheck probes the rate limit store. An unreachable store reports
// degraded, not unhealthy: the limiter fails open.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) Check {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			return Check{Status: StatusDegraded, Message: "rate limit store unreachable"}
		}
		return Check{Status: StatusHealthy}
	}
}

// BusCheck probes the change-notification channel. An unavailable channel
// reports degraded: the key refresher falls back to polling.
func BusCheck(subscriber bus.Subscriber) CheckFunc {
	return func(ctx context.Context) Check {
		if !subscriber.Healthy(ctx) {
			return Check{Status: StatusDegraded, Message: "change notification channel unavailable"}
		}
		return Check{Status: StatusHealthy}
	}
}
