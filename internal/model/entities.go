package model

import "time"

// Frequencies of a repeating schedule.
const (
	FrequencyDaily       = "daily"
	FrequencyWeekly      = "weekly"
	FrequencyEvery2Weeks = "every-2-weeks"
	FrequencyEvery4Weeks = "every-4-weeks"
)

// FreeForm is the body of a kind that has no typed schema.
type FreeForm map[string]any

type Profile struct {
	Name               string         `json:"name" validate:"required"`
	MRN                string         `json:"MRN,omitempty"`
	BirthDate          string         `json:"birthdate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Pronoun            string         `json:"pronoun,omitempty"`
	Race               []string       `json:"race,omitempty"`
	PrimaryCareManager map[string]any `json:"primaryCareManager,omitempty"`
}

type Value struct {
	ValueID        string     `json:"valueId,omitempty"`
	Name           string     `json:"name" validate:"required"`
	LifeAreaID     string     `json:"lifeAreaId" validate:"required"`
	EditedDateTime *time.Time `json:"editedDateTime,omitempty"`
}

type Activity struct {
	ActivityID      string     `json:"activityId,omitempty"`
	Name            string     `json:"name" validate:"required"`
	ValueID         string     `json:"valueId,omitempty"`
	EnjoymentLevel  *int       `json:"enjoymentLevel,omitempty" validate:"omitempty,min=0,max=10"`
	ImportanceLevel *int       `json:"importanceLevel,omitempty" validate:"omitempty,min=0,max=10"`
	IsActive        *bool      `json:"isActive,omitempty"`
	EditedDateTime  *time.Time `json:"editedDateTime,omitempty"`
}

// Active treats a missing isActive flag as active.
func (a Activity) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

type ActivitySchedule struct {
	ActivityScheduleID string          `json:"activityScheduleId,omitempty"`
	ActivityID         string          `json:"activityId" validate:"required"`
	Date               string          `json:"date" validate:"required,datetime=2006-01-02"`
	TimeOfDay          int             `json:"timeOfDay" validate:"min=0,max=23"`
	HasRepetition      bool            `json:"hasRepetition"`
	Frequency          string          `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly every-2-weeks every-4-weeks"`
	RepeatDayFlags     map[string]bool `json:"repeatDayFlags,omitempty"`
	HasReminder        bool            `json:"hasReminder"`
	ReminderTimeOfDay  int             `json:"reminderTimeOfDay,omitempty" validate:"min=0,max=23"`
	EditedDateTime     *time.Time      `json:"editedDateTime,omitempty"`
}

// RepeatDays returns the weekday names flagged true.
func (s ActivitySchedule) RepeatDays() []string {
	var days []string
	for day, on := range s.RepeatDayFlags {
		if on {
			days = append(days, day)
		}
	}
	return days
}

type Assessment struct {
	AssessmentID     string     `json:"assessmentId,omitempty"`
	Name             string     `json:"name,omitempty"`
	Assigned         bool       `json:"assigned"`
	AssignedDateTime *time.Time `json:"assignedDateTime,omitempty"`
	Frequency        string     `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly every-2-weeks every-4-weeks"`
	DayOfWeek        string     `json:"dayOfWeek,omitempty" validate:"omitempty,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	TimeOfDay        *int       `json:"timeOfDay,omitempty" validate:"omitempty,min=0,max=23"`
}

// ScheduledItem holds the occurrence fields shared by scheduled activities and assessments.
type ScheduledItem struct {
	DueDate           string     `json:"dueDate" validate:"required,datetime=2006-01-02"`
	DueTimeOfDay      int        `json:"dueTimeOfDay" validate:"min=0,max=23"`
	DueDateTime       time.Time  `json:"dueDateTime" validate:"required"`
	ReminderDate      string     `json:"reminderDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReminderTimeOfDay *int       `json:"reminderTimeOfDay,omitempty" validate:"omitempty,min=0,max=23"`
	ReminderDateTime  *time.Time `json:"reminderDateTime,omitempty"`
	Completed         bool       `json:"completed"`
	CompletedDateTime *time.Time `json:"completedDateTime,omitempty"`
}

// Snapshot is a denormalized copy of the documents an occurrence was derived from.
type Snapshot struct {
	ActivitySchedule map[string]any `json:"activitySchedule"`
	Activity         map[string]any `json:"activity"`
	Value            map[string]any `json:"value,omitempty"`
}

type ScheduledActivity struct {
	ScheduledActivityID string `json:"scheduledActivityId,omitempty"`
	ActivityScheduleID  string `json:"activityScheduleId" validate:"required"`
	ScheduledItem
	DataSnapshot *Snapshot `json:"dataSnapshot,omitempty"`
}

type ScheduledAssessment struct {
	ScheduledAssessmentID string `json:"scheduledAssessmentId,omitempty"`
	AssessmentID          string `json:"assessmentId" validate:"required"`
	ScheduledItem
}
