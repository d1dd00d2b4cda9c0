package service

import (
	"time"

	"github.com/uwscope/scope-web-sub000/internal/calendar"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

// ScheduleSettings holds the calendar parameters shared by all schedules.
type ScheduleSettings struct {
	Location            *time.Location
	HorizonMonths       int
	AssessmentTimeOfDay int
}

func (s ScheduleSettings) expandOptions() calendar.ExpandOptions {
	return calendar.ExpandOptions{Location: s.Location, HorizonMonths: s.HorizonMonths}
}

// ActivityScheduleRule converts a stored activity schedule into a recurrence rule.
func ActivityScheduleRule(s model.ActivitySchedule) (calendar.Rule, error) {
	start, err := calendar.ParseDate(s.Date)
	if err != nil {
		return calendar.Rule{}, err
	}
	rule := calendar.Rule{
		StartDate:         start,
		HasRepetition:     s.HasRepetition,
		Frequency:         calendar.Frequency(s.Frequency),
		DueTimeOfDay:      s.TimeOfDay,
		HasReminder:       s.HasReminder,
		ReminderTimeOfDay: s.ReminderTimeOfDay,
	}
	for _, name := range s.RepeatDays() {
		day, err := calendar.ParseWeekday(name)
		if err != nil {
			return calendar.Rule{}, err
		}
		rule.Weekdays = append(rule.Weekdays, day)
	}
	calendar.SortWeekdays(rule.Weekdays)
	return rule, nil
}

// AssessmentRule anchors an assigned assessment on the first dayOfWeek on or
// after its assignment (or effective, when the assignment time is unknown).
// Anchoring on the assignment rather than on effective keeps every-2-weeks and
// every-4-weeks cadences on the same weeks across maintenance runs.
func AssessmentRule(a model.Assessment, effective time.Time, settings ScheduleSettings) (calendar.Rule, error) {
	day, err := calendar.ParseWeekday(a.DayOfWeek)
	if err != nil {
		return calendar.Rule{}, err
	}
	anchor := effective
	if a.AssignedDateTime != nil {
		anchor = *a.AssignedDateTime
	}
	hour := settings.AssessmentTimeOfDay
	if a.TimeOfDay != nil {
		hour = *a.TimeOfDay
	}
	return calendar.Rule{
		StartDate:     calendar.NextWeekday(day, anchor, settings.Location),
		HasRepetition: true,
		Frequency:     calendar.Frequency(a.Frequency),
		Weekdays:      []time.Weekday{day},
		DueTimeOfDay:  hour,
	}, nil
}

func scheduledItem(occ calendar.Occurrence) model.ScheduledItem {
	item := model.ScheduledItem{
		DueDate:      occ.DueDate.String(),
		DueTimeOfDay: occ.DueTimeOfDay,
		DueDateTime:  occ.DueDateTime,
	}
	if occ.HasReminder && occ.ReminderDateTime != nil {
		hour := occ.ReminderTimeOfDay
		at := *occ.ReminderDateTime
		item.ReminderDate = occ.ReminderDate.String()
		item.ReminderTimeOfDay = &hour
		item.ReminderDateTime = &at
	}
	return item
}
