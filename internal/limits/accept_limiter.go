// Package limits provides an accept-time connection rate limiter: a
// two-level token bucket (per source IP, and global) that guards the
// reactor's accept step against a connection flood. This is a resource-
// protection concern, not authentication — it never inspects credentials
// and accepts connections it lets through unconditionally.
package limits

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AcceptLimiterConfig configures both rate-limiting levels. Zero values
// fall back to the defaults noted per field.
type AcceptLimiterConfig struct {
	IPBurst     int           // max burst connections per source IP (default 10)
	IPRate      float64       // sustained connections/sec per IP (default 1.0)
	IPTTL       time.Duration // evict an IP's bucket after this much inactivity (default 5m)
	GlobalBurst int           // max burst connections system-wide (default 100)
	GlobalRate  float64       // sustained connections/sec system-wide (default 20.0)
}

func (c AcceptLimiterConfig) withDefaults() AcceptLimiterConfig {
	if c.IPBurst == 0 {
		c.IPBurst = 10
	}
	if c.IPRate == 0 {
		c.IPRate = 1.0
	}
	if c.IPTTL == 0 {
		c.IPTTL = 5 * time.Minute
	}
	if c.GlobalBurst == 0 {
		c.GlobalBurst = 100
	}
	if c.GlobalRate == 0 {
		c.GlobalRate = 20.0
	}
	return c
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// AcceptLimiter decides, per incoming connection attempt, whether to
// admit it. It has no injected logger (the engine counts rejections in
// its ConnectionsRejected metric) and an explicit Close to stop the cleanup goroutine instead of
// a package-level singleton.
type AcceptLimiter struct {
	cfg AcceptLimiterConfig

	mu  sync.Mutex
	ips map[string]*ipEntry

	global *rate.Limiter

	stop chan struct{}
	once sync.Once
}

// NewAcceptLimiter starts the limiter and its background IP-entry janitor.
func NewAcceptLimiter(cfg AcceptLimiterConfig) *AcceptLimiter {
	cfg = cfg.withDefaults()
	l := &AcceptLimiter{
		cfg:    cfg,
		ips:    make(map[string]*ipEntry),
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		stop:   make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow reports whether a new connection from ip should be accepted. It
// always consumes from the global bucket first (cheapest rejection path
// under a distributed flood) before touching the per-IP bucket.
func (l *AcceptLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	e, ok := l.ips[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.IPRate), l.cfg.IPBurst)}
		l.ips[ip] = e
	}
	e.lastAccess = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *AcceptLimiter) janitor() {
	ticker := time.NewTicker(l.cfg.IPTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.cfg.IPTTL)
			l.mu.Lock()
			for ip, e := range l.ips {
				if e.lastAccess.Before(cutoff) {
					delete(l.ips, ip)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Close stops the background janitor goroutine.
func (l *AcceptLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
