// Package ratelimit throttles abusive clients with fixed-window counters kept
// in process memory.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Rule is the budget of one bucket: Limit requests per Window per client.
type Rule struct {
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per client in fixed windows. A client's window
// starts with its first request and resets once Window has elapsed.
type Limiter struct {
	rule Rule
	now  func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop chan struct{}
	once sync.Once
}

// New builds a limiter and starts its cleanup loop. Call Stop to end it.
func New(rule Rule) *Limiter {
	l := newLimiter(rule, time.Now)
	go l.cleanupLoop(cleanupInterval(rule.Window))
	return l
}

func newLimiter(rule Rule, now func() time.Time) *Limiter {
	if rule.Limit <= 0 {
		rule.Limit = 1
	}
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	if rule.Message == "" {
		rule.Message = "Too many requests, please try again later."
	}
	return &Limiter{
		rule:    rule,
		now:     now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
}

// Allow records a request from key. When the budget is spent it returns false
// and the time until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.rule.Window)) {
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count >= l.rule.Limit {
		return false, w.start.Add(l.rule.Window).Sub(now)
	}
	w.count++
	return true, 0
}

// Middleware rejects over-budget clients with 429 before the handler runs.
func (l *Limiter) Middleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := l.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}
		logger.WithFields(logrus.Fields{
			"bucket":    l.rule.Name,
			"client_ip": c.ClientIP(),
		}).Warn("rate limit exceeded")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": l.rule.Message})
	}
}

// Stop ends the cleanup loop.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

// purge drops windows that have already expired.
func (l *Limiter) purge() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.rule.Window)) {
			delete(l.windows, key)
		}
	}
}

func cleanupInterval(window time.Duration) time.Duration {
	if window <= 0 {
		return time.Minute
	}
	if window > 5*time.Minute {
		return 5 * time.Minute
	}
	return window
}
