package availability

import (
	"sort"

	"github.com/example/autoescola/internal/domain"
)

// DefaultWindows is the schedule used for instructors that have configured no
// availability at all: 08:00-12:00 and 13:00-18:00, every day of the week.
var DefaultWindows = []domain.Window{
	{Start: domain.Clock(8, 0), End: domain.Clock(12, 0)},
	{Start: domain.Clock(13, 0), End: domain.Clock(18, 0)},
}

// Engine computes bookable slots from availability rules and existing bookings.
//
// The engine performs no I/O. An empty result is the only "no availability"
// signal; it never fails.
type Engine struct {
	slot     domain.TimeOfDay
	defaults []domain.Window
}

// Option customises an Engine.
type Option func(*Engine)

// WithDefaultWindows replaces the fallback schedule used when an instructor has no rules.
func WithDefaultWindows(windows ...domain.Window) Option {
	return func(e *Engine) {
		e.defaults = append([]domain.Window(nil), windows...)
	}
}

// NewEngine constructs an Engine producing one-hour slots.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		slot:     domain.TimeOfDay(domain.SlotLength.Minutes()),
		defaults: DefaultWindows,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Windows resolves the effective windows for date.
//
// Precedence is blocked date, then override, then the weekly entry for the
// weekday. A rule with nothing configured falls back to the default windows.
func (e *Engine) Windows(rule domain.AvailabilityRule, date domain.Date) []domain.Window {
	if rule.IsZero() {
		return e.defaults
	}
	if rule.IsBlocked(date) {
		return nil
	}
	if w, ok := rule.Overrides[date]; ok {
		if !w.Valid() {
			return nil
		}
		return []domain.Window{w}
	}
	if w, ok := rule.Weekly[date.Weekday()]; ok && w.Valid() {
		return []domain.Window{w}
	}
	return nil
}

// Slots returns the ordered start times bookable for instructorID on date.
//
// Bookings for other instructors, other dates or in a non-occupying status are
// ignored.
func (e *Engine) Slots(rule domain.AvailabilityRule, instructorID string, date domain.Date, bookings []domain.Booking) []domain.TimeOfDay {
	windows := e.Windows(rule, date)
	if len(windows) == 0 {
		return []domain.TimeOfDay{}
	}

	taken := occupied(instructorID, date, bookings)
	seen := make(map[domain.TimeOfDay]struct{})
	slots := make([]domain.TimeOfDay, 0, 10)
	for _, w := range windows {
		for start := w.Start; start+e.slot <= w.End; start += e.slot {
			if _, busy := taken[start]; busy {
				continue
			}
			if _, dup := seen[start]; dup {
				continue
			}
			seen[start] = struct{}{}
			slots = append(slots, start)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// IsAvailable reports whether at is among the computed slots.
func (e *Engine) IsAvailable(rule domain.AvailabilityRule, instructorID string, date domain.Date, at domain.TimeOfDay, bookings []domain.Booking) bool {
	return Contains(e.Slots(rule, instructorID, date, bookings), at)
}

// Day groups the slots of one calendar date.
type Day struct {
	Date  domain.Date        `json:"date"`
	Slots []domain.TimeOfDay `json:"slots"`
}

// Week computes slots for days consecutive dates starting at from.
func (e *Engine) Week(rule domain.AvailabilityRule, instructorID string, from domain.Date, days int, bookings []domain.Booking) []Day {
	if days <= 0 {
		return nil
	}
	out := make([]Day, 0, days)
	for i := 0; i < days; i++ {
		date := from.AddDays(i)
		out = append(out, Day{Date: date, Slots: e.Slots(rule, instructorID, date, bookings)})
	}
	return out
}

// Contains reports whether at appears in slots.
func Contains(slots []domain.TimeOfDay, at domain.TimeOfDay) bool {
	for _, s := range slots {
		if s == at {
			return true
		}
	}
	return false
}

// Strings renders slots as "HH:MM" values.
func Strings(slots []domain.TimeOfDay) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func occupied(instructorID string, date domain.Date, bookings []domain.Booking) map[domain.TimeOfDay]struct{} {
	taken := make(map[domain.TimeOfDay]struct{})
	for _, b := range bookings {
		if b.InstructorID != instructorID || b.Date != date || !b.Status.Occupying() {
			continue
		}
		taken[b.Time] = struct{}{}
	}
	return taken
}
