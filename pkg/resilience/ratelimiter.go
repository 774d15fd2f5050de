package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures a KeyedLimiter.
type LimiterOpts struct {
	// Rate is the number of requests per second each key may sustain.
	Rate float64
	// Burst is the bucket capacity per key.
	Burst int
	// IdleTTL evicts keys not seen for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key, typically a client address.
type KeyedLimiter struct {
	mu      sync.Mutex
	opts    LimiterOpts
	entries map[string]*keyedEntry
	now     func() time.Time
}

// NewKeyedLimiter creates a KeyedLimiter. Burst defaults to 1.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &KeyedLimiter{
		opts:    opts,
		entries: make(map[string]*keyedEntry),
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(rate.Limit(k.opts.Rate), k.opts.Burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep drops keys idle longer than IdleTTL and returns how many it removed.
func (k *KeyedLimiter) Sweep() int {
	if k.opts.IdleTTL <= 0 {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := k.now().Add(-k.opts.IdleTTL)
	n := 0
	for key, e := range k.entries {
		if e.lastSeen.Before(cutoff) {
			delete(k.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
