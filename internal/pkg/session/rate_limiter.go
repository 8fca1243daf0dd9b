// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"dashboard-service/internal/pkg/otp"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per key kept in redis.
type RateLimiter struct {
	client redis.UniversalClient
	limits Limits
}

func NewRateLimiter(client redis.UniversalClient, limits Limits) *RateLimiter {
	return &RateLimiter{client: client, limits: limits}
}

// CheckLoginAttempt counts a credential check for the ip/email pair.
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, email string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, otp.NormalizeEmail(email))
	return r.hit(ctx, key, r.limits.LoginAttempts, r.limits.LoginWindow)
}

// ResetLoginAttempts clears the counter after a successful login.
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, email string) error {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, otp.NormalizeEmail(email))
	return r.client.Del(ctx, key).Err()
}

// CheckResetRequest counts password reset requests per email.
func (r *RateLimiter) CheckResetRequest(ctx context.Context, email string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:password_reset:%s", otp.NormalizeEmail(email))
	return r.hit(ctx, key, r.limits.ResetRequests, r.limits.ResetWindow)
}

// CheckOTPAttempt counts code submissions per email.
func (r *RateLimiter) CheckOTPAttempt(ctx context.Context, email string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:otp:%s", otp.NormalizeEmail(email))
	return r.hit(ctx, key, r.limits.OTPAttempts, r.limits.OTPWindow)
}

// ResetOTPAttempts clears the code counter after a successful verification.
func (r *RateLimiter) ResetOTPAttempts(ctx context.Context, email string) error {
	key := fmt.Sprintf("ratelimit:otp:%s", otp.NormalizeEmail(email))
	return r.client.Del(ctx, key).Err()
}

func (r *RateLimiter) hit(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	// Set expiration on first attempt
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set window on %s: %w", key, err)
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: count <= limit, Remaining: remaining}
	if !d.Allowed {
		if ttl, err := r.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			d.RetryAfter = ttl
		} else {
			d.RetryAfter = window
		}
	}
	return d, nil
}
