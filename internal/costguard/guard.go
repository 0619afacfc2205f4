// Package costguard enforces the two independent spending limits on LLM
// calls: a daily USD ceiling and an hourly call-rate ceiling. Both checks
// are designed to be cheap on the happy path so they can run before every
// LLM dispatch without meaningfully affecting latency.
package costguard

import (
	"sync"
	"sync/atomic"
	"time"
)

// DailyBudgetExceededError is returned when a call would push the day's
// spend past the configured ceiling.
type DailyBudgetExceededError struct {
	SpentCents int64
	LimitCents int64
}

func (e *DailyBudgetExceededError) Error() string {
	return "daily budget exceeded"
}

// HourlyRateExceededError is returned when the sliding-window call count
// for the last hour would exceed the configured ceiling.
type HourlyRateExceededError struct {
	Actions int
	Limit   int
}

func (e *HourlyRateExceededError) Error() string {
	return "hourly rate exceeded"
}

// WarningFunc is invoked (at most once per UTC day) when spend crosses the
// warning threshold, typically 80% of the daily limit.
type WarningFunc func(spentCents, limitCents int64)

// Guard tracks daily USD spend (in integer cents, to avoid float drift) and
// a sliding window of recent call timestamps for hourly-rate limiting.
//
// The fast path — the common case where neither limit is close to being
// hit — is a single atomic-bool load performed by Allow before any lock is
// taken.
type Guard struct {
	dailyLimitCents  int64
	hourlyLimit      int
	warnThreshold    float64 // fraction of daily limit, e.g. 0.8
	onWarning        WarningFunc
	now              func() time.Time

	tripped atomic.Bool // fast-path flag: true once either limit is exhausted for the window

	mu           sync.Mutex
	spentCents   int64
	dayStart     time.Time
	warnedToday  bool
	callTimes    []time.Time // ascending, pruned to the last hour
}

// Config configures a new Guard.
type Config struct {
	DailyLimitCents int64
	HourlyLimit     int
	WarnThreshold   float64 // defaults to 0.8 if zero
	OnWarning       WarningFunc
}

// New creates a cost guard with the given daily (cents) and hourly (call
// count) limits.
func New(cfg Config) *Guard {
	warn := cfg.WarnThreshold
	if warn <= 0 {
		warn = 0.8
	}
	now := time.Now().UTC()
	return &Guard{
		dailyLimitCents: cfg.DailyLimitCents,
		hourlyLimit:     cfg.HourlyLimit,
		warnThreshold:   warn,
		onWarning:       cfg.OnWarning,
		now:             func() time.Time { return time.Now().UTC() },
		dayStart:        utcMidnight(now),
	}
}

func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Allow checks whether a new call is permitted without recording it. It is
// the fast-path check: a single atomic load when the guard isn't currently
// tripped, falling through to the precise locked check only when a limit
// might be close.
func (g *Guard) Allow() error {
	if !g.tripped.Load() {
		// Fast path: neither limit was exhausted as of the last Record call.
		// Still need to check hourly rate against wall-clock decay, so fall
		// through to the precise check below — but skip the cheap case
		// entirely only if we're confident nothing changed. In practice the
		// sliding window can only shrink over time (calls fall out of the
		// window), so if we weren't tripped we still aren't.
		return nil
	}
	return g.preciseCheck()
}

func (g *Guard) preciseCheck() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	if g.dailyLimitCents > 0 && g.spentCents >= g.dailyLimitCents {
		return &DailyBudgetExceededError{SpentCents: g.spentCents, LimitCents: g.dailyLimitCents}
	}
	if g.hourlyLimit > 0 && len(g.pruneCallsLocked()) >= g.hourlyLimit {
		return &HourlyRateExceededError{Actions: len(g.callTimes), Limit: g.hourlyLimit}
	}
	return nil
}

// rolloverLocked resets the daily counter when UTC midnight has passed.
// Caller must hold mu.
func (g *Guard) rolloverLocked() {
	now := g.now()
	today := utcMidnight(now)
	if today.After(g.dayStart) {
		g.dayStart = today
		g.spentCents = 0
		g.warnedToday = false
		g.tripped.Store(false)
	}
}

// pruneCallsLocked drops call timestamps older than one hour and returns
// the remaining slice. Caller must hold mu.
func (g *Guard) pruneCallsLocked() []time.Time {
	cutoff := g.now().Add(-time.Hour)
	i := 0
	for i < len(g.callTimes) && g.callTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.callTimes = append([]time.Time(nil), g.callTimes[i:]...)
	}
	return g.callTimes
}

// Reserve performs the full check-then-record sequence atomically: if the
// call would be permitted, it is recorded immediately (optimistic
// accounting) and nil is returned. Callers that want to charge the actual
// cost after the call completes should call Record separately instead, and
// use Allow for the pre-check.
func (g *Guard) Reserve(costCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	if g.dailyLimitCents > 0 && g.spentCents >= g.dailyLimitCents {
		g.tripped.Store(true)
		return &DailyBudgetExceededError{SpentCents: g.spentCents, LimitCents: g.dailyLimitCents}
	}
	calls := g.pruneCallsLocked()
	if g.hourlyLimit > 0 && len(calls) >= g.hourlyLimit {
		g.tripped.Store(true)
		return &HourlyRateExceededError{Actions: len(calls), Limit: g.hourlyLimit}
	}

	g.callTimes = append(g.callTimes, g.now())
	g.spentCents += costCents

	if g.dailyLimitCents > 0 {
		fraction := float64(g.spentCents) / float64(g.dailyLimitCents)
		if fraction >= g.warnThreshold && !g.warnedToday {
			g.warnedToday = true
			if g.onWarning != nil {
				g.onWarning(g.spentCents, g.dailyLimitCents)
			}
		}
		if g.spentCents >= g.dailyLimitCents {
			g.tripped.Store(true)
		}
	}
	if g.hourlyLimit > 0 && len(g.callTimes) >= g.hourlyLimit {
		g.tripped.Store(true)
	}
	return nil
}

// Record charges an already-completed call's actual cost against the daily
// total, without performing the pre-flight rejection check. Used when the
// estimated cost used by Reserve differs from the final billed cost.
func (g *Guard) Record(costCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	g.spentCents += costCents
	if g.dailyLimitCents > 0 && g.spentCents >= g.dailyLimitCents {
		g.tripped.Store(true)
	}
}

// Spent returns today's running total in integer cents.
func (g *Guard) Spent() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.spentCents
}

// SetClock overrides the guard's time source. Intended for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.dayStart = utcMidnight(now())
}
