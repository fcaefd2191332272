package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed is a token-bucket limiter per key (remote IP, email address, ...)
// with stale-entry cleanup.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*entry
	r        rate.Limit
	burst    int
	idle     time.Duration
}

// New creates a keyed limiter: r events/second, burst up to burst events.
// Entries unused for longer than idle are dropped by Run.
func New(r rate.Limit, burst int, idle time.Duration) *Keyed {
	return &Keyed{
		limiters: make(map[string]*entry),
		r:        r,
		burst:    burst,
		idle:     idle,
	}
}

// Every is a convenience for "one event per interval".
func Every(interval time.Duration) rate.Limit { return rate.Every(interval) }

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.limiters[key]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(k.r, k.burst)
	k.limiters[key] = &entry{limiter: l, lastSeen: time.Now()}
	return l
}

// Allow reports whether one more event for key may happen now.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).Allow()
}

// Sweep removes entries idle for longer than the configured idle window.
func (k *Keyed) Sweep(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for key, v := range k.limiters {
		if now.Sub(v.lastSeen) > k.idle {
			delete(k.limiters, key)
			n++
		}
	}
	return n
}

// Run sweeps stale entries every interval until ctx is done.
func (k *Keyed) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			k.Sweep(now)
		}
	}
}

func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
