// internal/warmup/warmup.go
package warmup

import "time"

// Engagement carries optional delivery feedback used to dampen the ramp.
type Engagement struct {
	OpenRate   float64
	BounceRate float64
}

const (
	// bounce thresholds protecting sender reputation
	bounceSlow = 0.05
	bounceHard = 0.10

	// below this open rate (with meaningful volume) the ramp is held flat
	lowOpenRate   = 0.05
	lowOpenSample = 50
)

// ramp stages: emails per hour by whole days since the campaign started
var stages = []struct {
	fromDay int
	perHour int
}{
	{0, 10},
	{1, 25},
	{3, 50},
	{7, 100},
	{14, 250},
}

// ComputeRate returns how many emails a campaign may send in the coming hour.
// An explicit override always wins. Otherwise the rate follows the staged
// ramp from startedAt, dampened (never raised) by engagement, and clamped to
// the remaining contact count. Pure: no I/O, deterministic given inputs.
func ComputeRate(total, sent int, startedAt, now time.Time, override *int, eng *Engagement) int {
	remaining := total - sent
	if remaining <= 0 {
		return 0
	}

	if override != nil {
		if *override < 0 {
			return 0
		}
		return *override
	}

	day := int(now.Sub(startedAt).Hours() / 24)
	if day < 0 {
		day = 0
	}
	rate := stageRate(day)

	if eng != nil {
		switch {
		case eng.BounceRate > bounceHard:
			rate /= 4
		case eng.BounceRate > bounceSlow:
			rate /= 2
		}
		if eng.OpenRate < lowOpenRate && sent >= lowOpenSample {
			if prev := previousStageRate(day); prev < rate {
				rate = prev
			}
		}
	}

	if rate > remaining {
		rate = remaining
	}
	if rate < 0 {
		rate = 0
	}
	return rate
}

func stageRate(day int) int {
	rate := stages[0].perHour
	for _, s := range stages {
		if day >= s.fromDay {
			rate = s.perHour
		}
	}
	return rate
}

// previousStageRate returns the rate one stage below the current one, used to
// hold a poorly-engaging campaign flat instead of advancing it.
func previousStageRate(day int) int {
	prev := stages[0].perHour
	rate := stages[0].perHour
	for _, s := range stages {
		if day >= s.fromDay {
			prev = rate
			rate = s.perHour
		}
	}
	return prev
}
