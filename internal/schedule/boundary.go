// Package schedule decides which boundary instant, if any, a campaign is due for.
//
// All arithmetic is done on Unix milliseconds. Intervals are fixed durations;
// there is no calendar or DST handling.
package schedule

import (
	"time"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

const (
	minuteMs = int64(60_000)
	hourMs   = 60 * minuteMs
	dayMs    = 24 * hourMs
)

var intervalMs = map[model.ScheduleInterval]int64{
	model.IntervalFiveMinutes:   5 * minuteMs,
	model.IntervalTenMinutes:    10 * minuteMs,
	model.IntervalThirtyMinutes: 30 * minuteMs,
	model.IntervalOneHour:       hourMs,
	model.IntervalThreeHours:    3 * hourMs,
	model.IntervalSixHours:      6 * hourMs,
	model.IntervalOneDay:        dayMs,
	model.IntervalOneWeek:       7 * dayMs,
}

// Step returns the interval length in milliseconds.
func Step(i model.ScheduleInterval) (int64, bool) {
	ms, ok := intervalMs[i]
	return ms, ok && ms > 0
}

// FloorBoundary returns the latest start+k*step that is <= now.
func FloorBoundary(nowMs, startMs, stepMs int64) (int64, bool) {
	if nowMs < startMs || stepMs <= 0 {
		return 0, false
	}
	k := (nowMs - startMs) / stepMs
	return startMs + k*stepMs, true
}

// Boundary returns the instant that should be dispatched at now, or false
// when nothing is due.
//
// A recurring campaign advances a single step past its last dispatch per call,
// so an outage never produces a burst of catch-up sends. A campaign that has
// never been dispatched jumps straight to the latest elapsed slot.
func Boundary(s model.Schedule, lastDispatchedAt *time.Time, now time.Time) (time.Time, bool) {
	nowMs := now.UnixMilli()
	startMs := s.StartAt.UnixMilli()

	switch s.Mode {
	case model.ScheduleOneTime:
		if lastDispatchedAt != nil || nowMs < startMs {
			return time.Time{}, false
		}
		if s.EndAt != nil && startMs > s.EndAt.UnixMilli() {
			return time.Time{}, false
		}
		return time.UnixMilli(startMs).UTC(), true

	case model.ScheduleRecurring:
		stepMs, ok := Step(s.Interval)
		if !ok || nowMs < startMs {
			return time.Time{}, false
		}

		var candidate int64
		if lastDispatchedAt != nil {
			candidate = lastDispatchedAt.UnixMilli() + stepMs
		} else if candidate, ok = FloorBoundary(nowMs, startMs, stepMs); !ok {
			return time.Time{}, false
		}

		if candidate > nowMs {
			return time.Time{}, false
		}
		if s.EndAt != nil && candidate > s.EndAt.UnixMilli() {
			return time.Time{}, false
		}
		return time.UnixMilli(candidate).UTC(), true
	}

	return time.Time{}, false
}
