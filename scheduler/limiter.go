package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// OrgLimits defines rate limits and concurrency for a single tenant.
type OrgLimits struct {
	// Org is the tenant identifier.
	Org string

	// RateLimit is the sustained dispatches per second for this org.
	// Zero means no rate limit.
	RateLimit float64

	// RateBurst is the burst size for the org's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous dispatches for this org.
	// Zero means no org-specific concurrency limit.
	MaxConcurrency int
}

// orgState tracks runtime state for a single org.
type orgState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// OrgLimiter enforces per-org dispatch admission. Orgs without a
// configuration are always admitted.
type OrgLimiter struct {
	mu   sync.Mutex
	orgs map[string]*orgState
}

// NewOrgLimiter creates an OrgLimiter with the given per-org limits.
func NewOrgLimiter(limits ...OrgLimits) *OrgLimiter {
	l := &OrgLimiter{orgs: make(map[string]*orgState, len(limits))}
	for _, cfg := range limits {
		l.SetLimits(cfg)
	}
	return l
}

// SetLimits configures limits for one org, replacing any previous
// configuration but preserving the current active count.
func (l *OrgLimiter) SetLimits(cfg OrgLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := &orgState{maxConcurrency: cfg.MaxConcurrency}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		st.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if existing := l.orgs[cfg.Org]; existing != nil {
		st.active = existing.active
	}
	l.orgs[cfg.Org] = st
}

// Acquire checks rate and concurrency limits for an org. It returns true
// and counts the dispatch as active if admitted.
func (l *OrgLimiter) Acquire(org string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.orgs[org]
	if !ok {
		return true
	}
	if st.maxConcurrency > 0 && st.active >= st.maxConcurrency {
		return false
	}
	if st.limiter != nil && !st.limiter.Allow() {
		return false
	}
	st.active++
	return true
}

// Release decrements the org's active count after a dispatch finishes.
func (l *OrgLimiter) Release(org string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.orgs[org]; ok && st.active > 0 {
		st.active--
	}
}

// ActiveCount returns the current number of active dispatches for an org.
func (l *OrgLimiter) ActiveCount(org string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.orgs[org]; ok {
		return st.active
	}
	return 0
}
