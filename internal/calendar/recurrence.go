package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyEvery2Weeks Frequency = "every-2-weeks"
	FrequencyEvery4Weeks Frequency = "every-4-weeks"
)

// intervalWeeks returns the week step of a weekly-family frequency, 0 for daily.
func (f Frequency) intervalWeeks() (int, error) {
	switch f {
	case FrequencyDaily:
		return 0, nil
	case FrequencyWeekly:
		return 1, nil
	case FrequencyEvery2Weeks:
		return 2, nil
	case FrequencyEvery4Weeks:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, f)
	}
}

// Rule is a schedule definition in local calendar terms.
type Rule struct {
	StartDate         Date
	HasRepetition     bool
	Frequency         Frequency
	Weekdays          []time.Weekday
	DueTimeOfDay      int
	HasReminder       bool
	ReminderTimeOfDay int
}

// Occurrence is one concrete due date derived from a Rule.
type Occurrence struct {
	DueDate           Date
	DueTimeOfDay      int
	DueDateTime       time.Time
	HasReminder       bool
	ReminderDate      Date
	ReminderTimeOfDay int
	ReminderDateTime  *time.Time
}

type ExpandOptions struct {
	// Location interprets dates and hours. Nil means UTC.
	Location *time.Location
	// HorizonMonths bounds repeating rules; values below 1 mean DefaultHorizonMonths.
	HorizonMonths int
}

const DefaultHorizonMonths = 3

func (o ExpandOptions) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Expand turns rule into the ordered list of its occurrences.
//
// A rule without repetition yields one occurrence on StartDate. A repeating
// rule yields every matching day from StartDate through the later of
// StartDate and the effective date plus the horizon. Weekly intervals are
// counted in Monday-based weeks from the week containing StartDate.
func Expand(rule Rule, effective time.Time, opts ExpandOptions) ([]Occurrence, error) {
	if err := checkHour(rule.DueTimeOfDay); err != nil {
		return nil, err
	}
	if rule.HasReminder {
		if err := checkHour(rule.ReminderTimeOfDay); err != nil {
			return nil, err
		}
	}
	loc := opts.location()

	if !rule.HasRepetition {
		return []Occurrence{occurrenceOn(rule, rule.StartDate, loc)}, nil
	}

	interval, err := rule.Frequency.intervalWeeks()
	if err != nil {
		return nil, err
	}
	weekdays := rule.Weekdays
	if interval > 0 && len(weekdays) == 0 {
		weekdays = []time.Weekday{rule.StartDate.Weekday()}
	}

	horizon := opts.HorizonMonths
	if horizon < 1 {
		horizon = DefaultHorizonMonths
	}
	anchor := rule.StartDate
	if today := DateOf(effective.In(loc)); today.After(anchor) {
		anchor = today
	}
	end := anchor.AddMonths(horizon)

	startWeek := mondayOf(rule.StartDate)
	var result []Occurrence
	for day := rule.StartDate; !day.After(end); day = day.AddDays(1) {
		if interval > 0 {
			if !containsWeekday(weekdays, day.Weekday()) {
				continue
			}
			if (startWeek.DaysUntil(day)/7)%interval != 0 {
				continue
			}
		}
		result = append(result, occurrenceOn(rule, day, loc))
	}
	return result, nil
}

func occurrenceOn(rule Rule, day Date, loc *time.Location) Occurrence {
	occ := Occurrence{
		DueDate:      day,
		DueTimeOfDay: rule.DueTimeOfDay,
		DueDateTime:  day.At(rule.DueTimeOfDay, loc),
		HasReminder:  rule.HasReminder,
	}
	if rule.HasReminder {
		reminder := day.At(rule.ReminderTimeOfDay, loc)
		occ.ReminderDate = day
		occ.ReminderTimeOfDay = rule.ReminderTimeOfDay
		occ.ReminderDateTime = &reminder
	}
	return occ
}

// NextWeekday returns the first day on or after the local date of effective
// that falls on weekday.
func NextWeekday(weekday time.Weekday, effective time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	today := DateOf(effective.In(loc))
	offset := (int(weekday) - int(today.Weekday()) + 7) % 7
	return today.AddDays(offset)
}

// SortWeekdays orders weekdays Monday first.
func SortWeekdays(days []time.Weekday) {
	sort.Slice(days, func(i, j int) bool {
		return (int(days[i])+6)%7 < (int(days[j])+6)%7
	})
}

func checkHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%w: hour %d outside 0-23", ErrInvalidRule, h)
	}
	return nil
}

func containsWeekday(list []time.Weekday, w time.Weekday) bool {
	for _, d := range list {
		if d == w {
			return true
		}
	}
	return false
}
