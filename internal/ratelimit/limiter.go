package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/models"
)

// idleBucketTTL is how long an unused client bucket is kept
const idleBucketTTL = 24 * time.Hour

// Limiter implements a token bucket rate limiter per client IP
type Limiter struct {
	enabled  bool
	requests int
	window   time.Duration
	burst    int
	logger   *logrus.Logger
	now      func() time.Time

	bucketsMutex  sync.Mutex
	clientBuckets map[string]*tokenBucket

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// NewLimiter creates a limiter and starts its cleanup goroutine; call Stop when done
func NewLimiter(configuration *config.Config, logger *logrus.Logger) *Limiter {
	rateLimiter := &Limiter{
		enabled:       configuration.RateLimitEnabled,
		requests:      configuration.RateLimitRequests,
		window:        configuration.RateLimitWindow,
		burst:         configuration.RateLimitBurst,
		logger:        logger,
		now:           time.Now,
		clientBuckets: make(map[string]*tokenBucket),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow consumes a token for clientIP, reporting whether the request may proceed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.enabled {
		return true
	}

	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	if !exists {
		bucket = &tokenBucket{tokens: float64(rateLimiter.burst), lastRefill: currentTime}
		rateLimiter.clientBuckets[clientIP] = bucket
	}
	bucket.lastSeen = currentTime

	if elapsed := currentTime.Sub(bucket.lastRefill); elapsed > 0 && rateLimiter.window > 0 {
		refill := elapsed.Seconds() / rateLimiter.window.Seconds() * float64(rateLimiter.requests)
		bucket.tokens = minimum(float64(rateLimiter.burst), bucket.tokens+refill)
		bucket.lastRefill = currentTime
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// Middleware rejects requests over the limit with 429
func (rateLimiter *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := ClientIP(c.Request)

		if !rateLimiter.Allow(clientIP) {
			rateLimiter.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(rateLimiter.now().Add(rateLimiter.window).Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "too many requests, retry later",
				Code:    http.StatusTooManyRequests,
			})
			return
		}

		c.Next()
	}
}

// ClientIP extracts the client address, preferring proxy headers
func ClientIP(request *http.Request) string {
	if forwardedFor := request.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if clientIP := net.ParseIP(first); clientIP != nil {
			return clientIP.String()
		}
	}

	if realIP := request.Header.Get("X-Real-IP"); realIP != "" {
		if clientIP := net.ParseIP(strings.TrimSpace(realIP)); clientIP != nil {
			return clientIP.String()
		}
	}

	clientIP, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// cleanup drops buckets that have been idle for a day
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.evictIdle()
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) evictIdle() {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	for clientIP, bucket := range rateLimiter.clientBuckets {
		if currentTime.Sub(bucket.lastSeen) > idleBucketTTL {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

// Stop stops the cleanup goroutine; safe to call more than once
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}

func minimum(firstValue, secondValue float64) float64 {
	if firstValue < secondValue {
		return firstValue
	}
	return secondValue
}
