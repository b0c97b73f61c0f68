// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Limiter enforces a rolling send cap per recipient email domain. Recipients
// beyond a domain's allowance are deferred by the caller, never dropped.
type Limiter struct {
	store      UsageStore
	caps       map[string]int
	defaultCap int
	window     time.Duration
	logger     *zap.SugaredLogger
}

// NewLimiter builds a limiter. caps holds per-domain overrides; defaultCap
// applies to every other domain, and defaultCap <= 0 means unknown domains
// are unlimited (logged, not an error).
func NewLimiter(store UsageStore, caps map[string]int, defaultCap int, window time.Duration, logger *zap.SugaredLogger) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Limiter{store: store, caps: caps, defaultCap: defaultCap, window: window, logger: logger}
}

// Window returns the start of the current limiting window.
func (l *Limiter) Window(now time.Time) time.Time {
	return now.UTC().Truncate(l.window)
}

// NextWindow returns when the following window opens, i.e. the earliest time
// deferred recipients can be retried.
func (l *Limiter) NextWindow(now time.Time) time.Time {
	return l.Window(now).Add(l.window)
}

// Apportion splits per-domain demand into what may be sent in the current
// window and what must wait. For every domain,
// allowed[domain]+blocked[domain] == demand[domain].
func (l *Limiter) Apportion(ctx context.Context, now time.Time, demand map[string]int) (allowed, blocked map[string]int, err error) {
	allowed = make(map[string]int, len(demand))
	blocked = make(map[string]int)
	window := l.Window(now)

	for domain, n := range demand {
		if n <= 0 {
			allowed[domain] = 0
			continue
		}
		cap, capped := l.capFor(domain)
		if !capped {
			l.logger.Debugw("no cap configured for domain, sending unlimited", "domain", domain, "demand", n)
			allowed[domain] = n
			continue
		}
		used, err := l.store.Get(ctx, domain, window)
		if err != nil {
			return nil, nil, err
		}
		room := cap - used
		if room < 0 {
			room = 0
		}
		if n <= room {
			allowed[domain] = n
			continue
		}
		allowed[domain] = room
		blocked[domain] = n - room
	}
	return allowed, blocked, nil
}

// Confirm records actual outbound pressure. Called only after confirmed send
// attempts, never on enqueue.
func (l *Limiter) Confirm(ctx context.Context, now time.Time, domain string, n int) error {
	if n <= 0 {
		return nil
	}
	if _, capped := l.capFor(domain); !capped {
		return nil
	}
	return l.store.Incr(ctx, domain, l.Window(now), n)
}

func (l *Limiter) capFor(domain string) (int, bool) {
	if cap, ok := l.caps[domain]; ok {
		return cap, true
	}
	if l.defaultCap > 0 {
		return l.defaultCap, true
	}
	return 0, false
}
