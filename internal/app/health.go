// internal/app/health.go
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is any store the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisPing struct {
	client redis.UniversalClient
}

func (r redisPing) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// newHealthHandler reports ok only when every store answers a ping.
func newHealthHandler(stores map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := make(gin.H, len(stores))
		status := http.StatusOK
		for name, store := range stores {
			if err := store.Ping(ctx); err != nil {
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
