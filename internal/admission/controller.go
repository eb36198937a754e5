// Package admission gates whether a submitted input reaches the device. It is
// on the hot path for every viewer click: one cache lookup plus a handful of
// set membership checks.
package admission

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Result is the admission decision for one submission.
type Result int

const (
	Accepted Result = iota
	RateLimited
	LockedNonPrivileged
	Banned
	SessionOffline
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RateLimited:
		return "rate_limited"
	case LockedNonPrivileged:
		return "locked_non_privileged"
	case Banned:
		return "banned"
	case SessionOffline:
		return "session_offline"
	default:
		return "unknown"
	}
}

// Rules supplies the session state the controller checks against. The
// orchestrator implements it; tests use a plain struct.
type Rules interface {
	Running() bool
	InputLocked() bool
	Privileged(actorID string) bool
	Banned(actorID string) bool
}

// Limiter enforces a per-actor cooldown backed by a fixed-capacity expirable
// LRU, so unused entries age out regardless of the cooldown itself.
type Limiter struct {
	cooldown time.Duration
	cache    *expirable.LRU[string, time.Time]
	now      func() time.Time
}

func NewLimiter(cooldown time.Duration, capacity int, ttl time.Duration) *Limiter {
	if ttl < cooldown {
		ttl = cooldown
	}
	return &Limiter{
		cooldown: cooldown,
		cache:    expirable.NewLRU[string, time.Time](capacity, nil, ttl),
		now:      time.Now,
	}
}

// Allow reports whether the actor is past its cooldown and, if so, records
// the new timestamp in the same step.
func (l *Limiter) Allow(actorID string) bool {
	now := l.now()
	if last, ok := l.cache.Get(actorID); ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.cache.Add(actorID, now)
	return true
}

// Controller applies the admission checks in their fixed short-circuit order.
type Controller struct {
	rules   Rules
	limiter *Limiter
}

func NewController(rules Rules, limiter *Limiter) *Controller {
	return &Controller{rules: rules, limiter: limiter}
}

// Submit decides one input submission. Order matters: an offline session
// masks a lock, a lock masks a ban, a ban masks rate limiting. Accepted
// atomically records the actor's new cooldown timestamp.
func (c *Controller) Submit(actorID string) Result {
	if !c.rules.Running() {
		return SessionOffline
	}
	if c.rules.InputLocked() && !c.rules.Privileged(actorID) {
		return LockedNonPrivileged
	}
	if c.rules.Banned(actorID) {
		return Banned
	}
	if !c.limiter.Allow(actorID) {
		return RateLimited
	}
	return Accepted
}
