package shift

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) Before(o Clock) bool {
	return c.Hour < o.Hour || (c.Hour == o.Hour && c.Minute < o.Minute)
}

// On places the clock on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Span returns start and end on the given date. The end rolls to the following day unless
// its clock is strictly after the start clock, so equal clocks span a full day.
func Span(day time.Time, start, end Clock) (time.Time, time.Time) {
	s := start.On(day)
	e := end.On(day)
	if !start.Before(end) {
		e = end.On(day.AddDate(0, 0, 1))
	}
	return s, e
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekdays(days []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		out = append(out, wd)
	}
	return out, nil
}

type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Occurrences expands a weekly pattern. For week w and weekday d, in the order given, the
// occurrence falls (d - today + 7) mod 7 + 7w days after today.
func Occurrences(today time.Time, weekdays []time.Weekday, weeks int, start, end Clock) []Occurrence {
	y, m, d := today.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	todayDow := int(base.Weekday())

	out := make([]Occurrence, 0, weeks*len(weekdays))
	for w := 0; w < weeks; w++ {
		for _, wd := range weekdays {
			offset := (int(wd)-todayDow+7)%7 + 7*w
			day := base.AddDate(0, 0, offset)
			s, e := Span(day, start, end)
			out = append(out, Occurrence{Index: len(out), Start: s, End: e})
		}
	}
	return out
}
