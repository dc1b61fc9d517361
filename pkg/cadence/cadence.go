package cadence

import (
	"time"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/types"
)

// Validate checks a cadence kind/value pair at write time.
func Validate(kind types.CadenceKind, value int) error {
	if kind == "" {
		return nil
	}
	if !types.ValidCadenceKind(kind) {
		return errdefs.InvalidArgf("unknown cadence kind %q", kind)
	}
	switch kind {
	case types.CadenceDayOfWeek:
		if value < 0 || value > 6 {
			return errdefs.InvalidArgf("day-of-week cadence value %d, want 0..6", value)
		}
	case types.CadenceDayOfMonth:
		if value < 1 || value > 31 {
			return errdefs.InvalidArgf("day-of-month cadence value %d, want 1..31", value)
		}
	}
	return nil
}

// Due reports whether a memory is due for review at now. The reference
// point is the later of last access and last update; a memory never
// reviewed falls back to its creation time.
func Due(m *types.Memory, now time.Time) bool {
	if m.CadenceKind == "" || m.CadenceKind == types.CadenceNone {
		return false
	}
	ref := lastTouch(m)
	switch m.CadenceKind {
	case types.CadenceDaily:
		return daysBetween(ref, now) >= 1
	case types.CadenceWeekly:
		return daysBetween(ref, now) >= 7
	case types.CadenceMonthly:
		return monthsBetween(ref, now) >= 1
	case types.CadenceDayOfWeek:
		return int(now.Weekday()) == m.CadenceValue && daysBetween(ref, now) >= 1
	case types.CadenceDayOfMonth:
		return now.Day() == clampDay(m.CadenceValue, now) && daysBetween(ref, now) >= 1
	}
	return false
}

func lastTouch(m *types.Memory) time.Time {
	ts := m.CreatedAt
	if m.UpdatedAt > ts {
		ts = m.UpdatedAt
	}
	if m.LastAccessed > ts {
		ts = m.LastAccessed
	}
	return time.UnixMilli(ts).UTC()
}

// daysBetween counts calendar-day boundaries crossed between a and b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// monthsBetween counts whole calendar months elapsed from a to b.
func monthsBetween(a, b time.Time) int {
	a, b = a.UTC(), b.UTC()
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return months
}

// clampDay folds a day-of-month target into the current month's length,
// so a 31st-of-month cadence fires on the 30th (or 28th/29th) when the
// month is shorter.
func clampDay(day int, now time.Time) int {
	last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	if day > last {
		return last
	}
	return day
}
