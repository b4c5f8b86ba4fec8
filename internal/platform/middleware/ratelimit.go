// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/constants"
	"github.com/taibuivan/warden/internal/platform/respond"
)

// # Rate Limiting

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors is one token bucket per client IP. Idle entries are evicted.
type visitors struct {
	mu      sync.Mutex
	entries map[string]*visitor
	limit   rate.Limit
	burst   int
}

func newVisitors(limit rate.Limit, burst int) *visitors {
	return &visitors{entries: make(map[string]*visitor), limit: limit, burst: burst}
}

func (v *visitors) reserve(ip string, now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.entries[ip]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.entries[ip] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
	}
	return delay
}

func (v *visitors) evictIdle(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ip, entry := range v.entries {
		if now.Sub(entry.lastSeen) > constants.RateLimitClientTTL {
			delete(v.entries, ip)
		}
	}
}

/*
RateLimit applies a per-IP token bucket with the default budget.

Each call owns its buckets, so routers built in tests do not share state.
The eviction goroutine stops when ctx is cancelled.
*/
func RateLimit(ctx context.Context) func(http.Handler) http.Handler {
	return RateLimitWith(ctx, rate.Limit(constants.DefaultRateLimitRPS), constants.DefaultRateLimitBurst)
}

// RateLimitWith is [RateLimit] with an explicit refill rate and burst.
func RateLimitWith(ctx context.Context, limit rate.Limit, burst int) func(http.Handler) http.Handler {
	buckets := newVisitors(limit, burst)

	go func() {
		ticker := time.NewTicker(constants.RateLimitCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				buckets.evictIdle(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if delay := buckets.reserve(RealIP(request), time.Now()); delay > 0 {
				retryAfter := int(math.Ceil(delay.Seconds()))
				writer.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
