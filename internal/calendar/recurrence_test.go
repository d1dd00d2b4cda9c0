package calendar

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func dueDates(occs []Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = o.DueDate.String()
	}
	return out
}

func TestExpand_SingleOccurrence(t *testing.T) {
	loc := losAngeles(t)
	rule := Rule{StartDate: mustDate(t, "2022-03-14"), DueTimeOfDay: 8}

	occs, err := Expand(rule, time.Date(2022, 3, 14, 10, 0, 0, 0, time.UTC), ExpandOptions{Location: loc})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "2022-03-14", occs[0].DueDate.String())
	assert.Equal(t, time.Date(2022, 3, 14, 15, 0, 0, 0, time.UTC), occs[0].DueDateTime)
	assert.Nil(t, occs[0].ReminderDateTime)
}

func TestExpand_WeeklyMondayTuesday(t *testing.T) {
	loc := losAngeles(t)
	rule := Rule{
		StartDate:     mustDate(t, "2022-03-14"),
		HasRepetition: true,
		Frequency:     FrequencyWeekly,
		Weekdays:      []time.Weekday{time.Monday, time.Tuesday},
		DueTimeOfDay:  8,
	}

	occs, err := Expand(rule, time.Date(2022, 3, 14, 10, 0, 0, 0, time.UTC), ExpandOptions{Location: loc, HorizonMonths: 3})
	require.NoError(t, err)

	dates := dueDates(occs)
	require.GreaterOrEqual(t, len(dates), 4)
	assert.Equal(t, []string{"2022-03-14", "2022-03-15", "2022-03-21", "2022-03-22"}, dates[:4])
	assert.Equal(t, "2022-06-14", dates[len(dates)-1])
	assert.Len(t, occs, 28)
	for _, o := range occs {
		wd := o.DueDate.Weekday()
		assert.True(t, wd == time.Monday || wd == time.Tuesday, "unexpected weekday %s on %s", wd, o.DueDate)
		local := o.DueDateTime.In(loc)
		assert.Equal(t, 8, local.Hour())
		assert.Equal(t, o.DueDate, DateOf(local))
	}
}

func TestExpand_DueDateTimeFollowsDaylightSaving(t *testing.T) {
	loc := losAngeles(t)
	rule := Rule{
		StartDate:     mustDate(t, "2022-03-11"),
		HasRepetition: true,
		Frequency:     FrequencyDaily,
		DueTimeOfDay:  8,
	}

	occs, err := Expand(rule, time.Date(2022, 3, 11, 0, 0, 0, 0, time.UTC), ExpandOptions{Location: loc, HorizonMonths: 1})
	require.NoError(t, err)
	require.Greater(t, len(occs), 3)

	// PST until 2022-03-13, PDT afterwards.
	assert.Equal(t, time.Date(2022, 3, 12, 16, 0, 0, 0, time.UTC), occs[1].DueDateTime)
	assert.Equal(t, time.Date(2022, 3, 13, 15, 0, 0, 0, time.UTC), occs[2].DueDateTime)
}

func TestExpand_EveryTwoWeeksCountsFromStartWeek(t *testing.T) {
	rule := Rule{
		StartDate:     mustDate(t, "2022-03-16"), // Wednesday
		HasRepetition: true,
		Frequency:     FrequencyEvery2Weeks,
		Weekdays:      []time.Weekday{time.Monday, time.Friday},
		DueTimeOfDay:  9,
	}

	occs, err := Expand(rule, time.Date(2022, 3, 16, 0, 0, 0, 0, time.UTC), ExpandOptions{HorizonMonths: 1})
	require.NoError(t, err)

	// The start week's Monday (03-14) precedes the start date and is skipped.
	assert.Equal(t, []string{"2022-03-18", "2022-03-28", "2022-04-01", "2022-04-11", "2022-04-15"}, dueDates(occs))
}

func TestExpand_EveryFourWeeksWithoutWeekdaysUsesStartWeekday(t *testing.T) {
	rule := Rule{
		StartDate:     mustDate(t, "2022-01-05"),
		HasRepetition: true,
		Frequency:     FrequencyEvery4Weeks,
		DueTimeOfDay:  9,
	}

	occs, err := Expand(rule, time.Date(2022, 1, 5, 0, 0, 0, 0, time.UTC), ExpandOptions{HorizonMonths: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"2022-01-05", "2022-02-02", "2022-03-02", "2022-03-30"}, dueDates(occs))
}

func TestExpand_HorizonRollsWithEffectiveDate(t *testing.T) {
	rule := Rule{
		StartDate:     mustDate(t, "2022-01-03"),
		HasRepetition: true,
		Frequency:     FrequencyWeekly,
		Weekdays:      []time.Weekday{time.Monday},
		DueTimeOfDay:  9,
	}

	occs, err := Expand(rule, time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC), ExpandOptions{HorizonMonths: 1})
	require.NoError(t, err)

	dates := dueDates(occs)
	assert.Equal(t, "2022-01-03", dates[0])
	assert.Equal(t, "2022-05-30", dates[len(dates)-1])
}

func TestExpand_Reminders(t *testing.T) {
	loc := losAngeles(t)
	rule := Rule{
		StartDate:         mustDate(t, "2022-03-14"),
		DueTimeOfDay:      8,
		HasReminder:       true,
		ReminderTimeOfDay: 7,
	}

	occs, err := Expand(rule, time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC), ExpandOptions{Location: loc})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	require.NotNil(t, occs[0].ReminderDateTime)
	assert.Equal(t, time.Date(2022, 3, 14, 14, 0, 0, 0, time.UTC), *occs[0].ReminderDateTime)
	assert.Equal(t, occs[0].DueDate, occs[0].ReminderDate)
}

func TestExpand_InvalidRules(t *testing.T) {
	start := Date{Year: 2022, Month: time.March, Day: 14}
	cases := []Rule{
		{StartDate: start, DueTimeOfDay: 24},
		{StartDate: start, DueTimeOfDay: 8, HasReminder: true, ReminderTimeOfDay: -1},
		{StartDate: start, DueTimeOfDay: 8, HasRepetition: true, Frequency: "monthly"},
	}
	for _, rule := range cases {
		_, err := Expand(rule, time.Now(), ExpandOptions{})
		assert.True(t, errors.Is(err, ErrInvalidRule), "rule %+v", rule)
	}
}

func TestNextWeekday(t *testing.T) {
	loc := losAngeles(t)

	// 2022-03-14 03:00 UTC is still Sunday 03-13 in Los Angeles.
	effective := time.Date(2022, 3, 14, 3, 0, 0, 0, time.UTC)

	assert.Equal(t, "2022-03-13", NextWeekday(time.Sunday, effective, loc).String())
	assert.Equal(t, "2022-03-14", NextWeekday(time.Monday, effective, loc).String())
	assert.Equal(t, "2022-03-19", NextWeekday(time.Saturday, effective, loc).String())
}

func TestParseWeekday(t *testing.T) {
	w, err := ParseWeekday("Thursday")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, w)

	_, err = ParseWeekday("thursday")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestSortWeekdays(t *testing.T) {
	days := []time.Weekday{time.Sunday, time.Wednesday, time.Monday}
	SortWeekdays(days)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Sunday}, days)
}
