package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxIdleLimiters = 1024

// RateLimiter ограничивает частоту вызовов по ключу (source:subject).
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewRateLimiter создает limiter: perSecond событий в секунду с запасом burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow возвращает true, если запрос укладывается в лимит.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxIdleLimiters {
			l.evictIdle(now)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.AllowN(now, 1)
}

// evictIdle удаляет limiters с полным запасом токенов: их состояние
// не отличается от нового.
func (l *RateLimiter) evictIdle(now time.Time) {
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}
