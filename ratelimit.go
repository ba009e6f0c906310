package lookbook

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the token bucket shared by every external call of a
// process: image fetches, vision calls and content calls.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter spaces calls evenly so that no one-minute window admits
// more than perMinute of them. The bucket holds a single token, so idle time
// never builds up a burst. Zero or a negative perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimiter{lim: rate.NewLimiter(limit, 1)}
}

// Wait blocks until a token is available. It fails with ErrTimeout when ctx
// ends first or its deadline is too close to ever get one.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %w", ErrTimeout, err)
	}
	return nil
}
